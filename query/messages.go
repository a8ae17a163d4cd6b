package query

import (
	"strings"

	"github.com/goliatone/go-mailroom/core"
)

const (
	TypeGetRecord       = "mailroom.query.record.get"
	TypeListEligible    = "mailroom.query.eligible.list"
	TypeProviderStatus  = "mailroom.query.provider.status"
	TypeCountUnverified = "mailroom.query.validity.count"
)

type GetRecordMessage struct {
	RecordID string
}

func (GetRecordMessage) Type() string { return TypeGetRecord }

func (m GetRecordMessage) Validate() error {
	if strings.TrimSpace(m.RecordID) == "" {
		return queryValidationError("record_id", "record id is required")
	}
	return nil
}

// ListEligibleMessage lists queueable records. Statuses empty means
// pending and failed.
type ListEligibleMessage struct {
	Statuses []core.DeliveryStatus
}

func (ListEligibleMessage) Type() string { return TypeListEligible }

func (m ListEligibleMessage) Validate() error {
	for _, status := range m.Statuses {
		switch status {
		case core.DeliveryStatusPending, core.DeliveryStatusFailed:
		default:
			return queryValidationError("statuses", "only pending and failed records are eligible")
		}
	}
	return nil
}

type ProviderStatusMessage struct{}

func (ProviderStatusMessage) Type() string { return TypeProviderStatus }

func (ProviderStatusMessage) Validate() error { return nil }

type CountUnverifiedMessage struct{}

func (CountUnverifiedMessage) Type() string { return TypeCountUnverified }

func (CountUnverifiedMessage) Validate() error { return nil }
