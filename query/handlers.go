package query

import (
	"context"

	"github.com/goliatone/go-mailroom/core"
)

type RecordReader interface {
	GetRecord(ctx context.Context, id string) (core.DeliveryRecord, error)
}

type EligibleReader interface {
	ListEligible(ctx context.Context, statuses []core.DeliveryStatus) ([]core.DeliveryRecord, error)
}

type UnverifiedCounter interface {
	CountUnverified(ctx context.Context) (int, error)
}

type ProviderStatusReader interface {
	ProviderStatus() []core.ProviderDescriptor
}

type GetRecordQuery struct {
	reader RecordReader
}

func NewGetRecordQuery(reader RecordReader) *GetRecordQuery {
	return &GetRecordQuery{reader: reader}
}

func (q *GetRecordQuery) Query(ctx context.Context, msg GetRecordMessage) (core.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryRecord{}, queryDependencyError("query: record reader is required")
	}
	return q.reader.GetRecord(ctx, msg.RecordID)
}

type ListEligibleQuery struct {
	reader EligibleReader
}

func NewListEligibleQuery(reader EligibleReader) *ListEligibleQuery {
	return &ListEligibleQuery{reader: reader}
}

func (q *ListEligibleQuery) Query(ctx context.Context, msg ListEligibleMessage) ([]core.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: eligible reader is required")
	}
	return q.reader.ListEligible(ctx, msg.Statuses)
}

type ProviderStatusQuery struct {
	reader ProviderStatusReader
}

func NewProviderStatusQuery(reader ProviderStatusReader) *ProviderStatusQuery {
	return &ProviderStatusQuery{reader: reader}
}

func (q *ProviderStatusQuery) Query(_ context.Context, _ ProviderStatusMessage) ([]core.ProviderDescriptor, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: provider status reader is required")
	}
	return q.reader.ProviderStatus(), nil
}

type CountUnverifiedQuery struct {
	counter UnverifiedCounter
}

func NewCountUnverifiedQuery(counter UnverifiedCounter) *CountUnverifiedQuery {
	return &CountUnverifiedQuery{counter: counter}
}

func (q *CountUnverifiedQuery) Query(ctx context.Context, _ CountUnverifiedMessage) (int, error) {
	if q == nil || q.counter == nil {
		return 0, queryDependencyError("query: unverified counter is required")
	}
	return q.counter.CountUnverified(ctx)
}
