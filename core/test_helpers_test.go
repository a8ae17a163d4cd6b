package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryRecordStore backs behavior tests with the same guard semantics
// the SQL store enforces through conditional updates.
type memoryRecordStore struct {
	mu      sync.Mutex
	seq     int
	records map[string]*DeliveryRecord
}

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{records: map[string]*DeliveryRecord{}}
}

func (s *memoryRecordStore) seed(records ...DeliveryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		copied := record
		s.records[record.ID] = &copied
	}
}

func (s *memoryRecordStore) Get(_ context.Context, id string) (DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return *record, nil
}

func (s *memoryRecordStore) Create(_ context.Context, record DeliveryRecord) (DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(record.ID) == "" {
		s.seq++
		record.ID = fmt.Sprintf("rec-%03d", s.seq)
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	copied := record
	s.records[record.ID] = &copied
	return record, nil
}

func (s *memoryRecordStore) MarkQueued(_ context.Context, id string, provider string) (DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err := record.RequestQueue(provider, time.Now().UTC()); err != nil {
		return DeliveryRecord{}, err
	}
	return *record, nil
}

func (s *memoryRecordStore) MarkSending(_ context.Context, id string) (DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err := record.BeginSend(time.Now().UTC()); err != nil {
		return DeliveryRecord{}, err
	}
	return *record, nil
}

func (s *memoryRecordStore) MarkSent(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return record.CompleteSend(true, at)
}

func (s *memoryRecordStore) MarkFailed(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err := record.CompleteSend(false, time.Now().UTC()); err != nil {
		return err
	}
	record.LastError = reason
	return nil
}

func (s *memoryRecordStore) ResetDelivery(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return record.Reset(time.Now().UTC())
}

func (s *memoryRecordStore) ListEligible(_ context.Context, statuses []DeliveryStatus) ([]DeliveryRecord, error) {
	if len(statuses) == 0 {
		statuses = []DeliveryStatus{DeliveryStatusPending, DeliveryStatusFailed}
	}
	wanted := map[DeliveryStatus]struct{}{}
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []DeliveryRecord{}
	for _, record := range s.records {
		if _, ok := wanted[record.Status]; !ok {
			continue
		}
		if record.Validity != EmailValidityValid {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryRecordStore) ListUnverified(_ context.Context, afterID string, limit int) ([]DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []DeliveryRecord{}
	for _, record := range s.records {
		if record.Validity == EmailValidityValid {
			continue
		}
		if afterID != "" && record.ID <= afterID {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryRecordStore) CountUnverified(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.records {
		if record.Validity != EmailValidityValid {
			count++
		}
	}
	return count, nil
}

func (s *memoryRecordStore) SaveVerdict(_ context.Context, id string, verdict Verdict, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	record.ApplyVerdict(verdict, at)
	return nil
}

var _ DeliveryRecordStore = (*memoryRecordStore)(nil)

// stubRecordStore lets a test inject a single behavior without carrying
// full store semantics.
type stubRecordStore struct {
	getFn           func(ctx context.Context, id string) (DeliveryRecord, error)
	markQueuedFn    func(ctx context.Context, id string, provider string) (DeliveryRecord, error)
	markSendingFn   func(ctx context.Context, id string) (DeliveryRecord, error)
	markSentFn      func(ctx context.Context, id string, at time.Time) error
	markFailedFn    func(ctx context.Context, id string, reason string) error
	resetFn         func(ctx context.Context, id string) error
	listEligibleFn  func(ctx context.Context, statuses []DeliveryStatus) ([]DeliveryRecord, error)
	listUnverified  func(ctx context.Context, afterID string, limit int) ([]DeliveryRecord, error)
	countUnverified func(ctx context.Context) (int, error)
	saveVerdictFn   func(ctx context.Context, id string, verdict Verdict, at time.Time) error
}

func (s *stubRecordStore) Get(ctx context.Context, id string) (DeliveryRecord, error) {
	if s.getFn == nil {
		return DeliveryRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return s.getFn(ctx, id)
}

func (s *stubRecordStore) Create(_ context.Context, record DeliveryRecord) (DeliveryRecord, error) {
	return record, nil
}

func (s *stubRecordStore) MarkQueued(ctx context.Context, id string, provider string) (DeliveryRecord, error) {
	if s.markQueuedFn == nil {
		return DeliveryRecord{ID: id, Provider: provider, Status: DeliveryStatusQueued}, nil
	}
	return s.markQueuedFn(ctx, id, provider)
}

func (s *stubRecordStore) MarkSending(ctx context.Context, id string) (DeliveryRecord, error) {
	if s.markSendingFn == nil {
		return DeliveryRecord{ID: id, Status: DeliveryStatusSending}, nil
	}
	return s.markSendingFn(ctx, id)
}

func (s *stubRecordStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	if s.markSentFn == nil {
		return nil
	}
	return s.markSentFn(ctx, id, at)
}

func (s *stubRecordStore) MarkFailed(ctx context.Context, id string, reason string) error {
	if s.markFailedFn == nil {
		return nil
	}
	return s.markFailedFn(ctx, id, reason)
}

func (s *stubRecordStore) ResetDelivery(ctx context.Context, id string) error {
	if s.resetFn == nil {
		return nil
	}
	return s.resetFn(ctx, id)
}

func (s *stubRecordStore) ListEligible(ctx context.Context, statuses []DeliveryStatus) ([]DeliveryRecord, error) {
	if s.listEligibleFn == nil {
		return nil, nil
	}
	return s.listEligibleFn(ctx, statuses)
}

func (s *stubRecordStore) ListUnverified(ctx context.Context, afterID string, limit int) ([]DeliveryRecord, error) {
	if s.listUnverified == nil {
		return nil, nil
	}
	return s.listUnverified(ctx, afterID, limit)
}

func (s *stubRecordStore) CountUnverified(ctx context.Context) (int, error) {
	if s.countUnverified == nil {
		return 0, nil
	}
	return s.countUnverified(ctx)
}

func (s *stubRecordStore) SaveVerdict(ctx context.Context, id string, verdict Verdict, at time.Time) error {
	if s.saveVerdictFn == nil {
		return nil
	}
	return s.saveVerdictFn(ctx, id, verdict, at)
}

var _ DeliveryRecordStore = (*stubRecordStore)(nil)

type captureEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	failWith error
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failWith != nil {
		return e.failWith
	}
	e.messages = append(e.messages, msg)
	return nil
}

func (e *captureEnqueuer) byJobID(jobID string) []*JobExecutionMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := []*JobExecutionMessage{}
	for _, msg := range e.messages {
		if msg.JobID == jobID {
			out = append(out, msg)
		}
	}
	return out
}

type stubProvider struct {
	name        string
	validateErr error
	testErr     error
	sendErr     error

	mu      sync.Mutex
	sent    []Message
	routing []RoutingParams
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) ValidateConfig() error { return p.validateErr }

func (p *stubProvider) TestConnection(context.Context) error { return p.testErr }

func (p *stubProvider) Send(_ context.Context, msg Message, routing RoutingParams) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	p.routing = append(p.routing, routing)
	return nil
}

var _ Provider = (*stubProvider)(nil)

type stubVerifier struct {
	verifyFn func(ctx context.Context, email string) (Verdict, error)
}

func (v *stubVerifier) Verify(ctx context.Context, email string) (Verdict, error) {
	if v.verifyFn == nil {
		return Verdict{Valid: true}, nil
	}
	return v.verifyFn(ctx, email)
}

type memoryProxyStore struct {
	mu      sync.Mutex
	proxies map[string]Proxy
}

func newMemoryProxyStore() *memoryProxyStore {
	return &memoryProxyStore{proxies: map[string]Proxy{}}
}

func (s *memoryProxyStore) Get(_ context.Context, id string) (Proxy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proxy, ok := s.proxies[id]
	if !ok {
		return Proxy{}, fmt.Errorf("core: proxy %s not found", id)
	}
	return proxy, nil
}

func (s *memoryProxyStore) Create(_ context.Context, proxy Proxy) (Proxy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proxies[proxy.ID] = proxy
	return proxy, nil
}

var _ ProxyStore = (*memoryProxyStore)(nil)

func newTestRegistry(providers ...*stubProvider) *ProviderRegistry {
	registry := NewProviderRegistry()
	for i, provider := range providers {
		if err := registry.Register(provider); err != nil {
			panic(err)
		}
		if i == 0 {
			if err := registry.SetDefault(provider.Name()); err != nil {
				panic(err)
			}
		}
	}
	return registry
}

func validPendingRecord(id, email string) DeliveryRecord {
	return DeliveryRecord{
		ID:       id,
		Email:    email,
		Status:   DeliveryStatusPending,
		Validity: EmailValidityValid,
	}
}
