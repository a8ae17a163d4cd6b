package core

import (
	"context"
	"fmt"
	"time"
)

// Service is the operator-facing surface of the delivery subsystem. It
// owns the resolved configuration and the wired components; the admin
// panel and the job runtime both talk to records through it.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	registry        Registry
	records         DeliveryRecordStore
	proxies         *ProxyResolver
	jobs            JobEnqueuer
	coordinator     *BulkDispatchCoordinator
	worker          *DispatchWorker
	pipeline        *ValidityCheckPipeline
}

// NewService resolves configuration through the provider and options
// stack, then wires the coordinator, dispatch worker and validity
// pipeline from the supplied stores.
func NewService(ctx context.Context, runtime Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(runtime)
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}

	defaults := DefaultConfig()
	loaded := defaults
	if builder.configProvider != nil {
		var err error
		loaded, err = builder.configProvider.Load(ctx, defaults)
		if err != nil {
			return nil, fmt.Errorf("core: config load failed: %w", err)
		}
	}
	resolved := loaded
	if builder.optionsResolver != nil {
		var err error
		resolved, err = builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
		if err != nil {
			return nil, fmt.Errorf("core: config resolution failed: %w", err)
		}
	}

	if builder.recordStore == nil {
		return nil, fmt.Errorf("core: delivery record store is required")
	}
	if builder.jobEnqueuer == nil {
		return nil, fmt.Errorf("core: job enqueuer is required")
	}
	if builder.verifier == nil {
		return nil, fmt.Errorf("core: address verifier is required")
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.composer == nil {
		builder.composer = StaticComposer{}
	}

	var proxies *ProxyResolver
	if builder.proxyStore != nil {
		var err error
		proxies, err = NewProxyResolver(builder.proxyStore, builder.logger)
		if err != nil {
			return nil, err
		}
	}

	coordinator, err := NewBulkDispatchCoordinator(
		builder.recordStore,
		builder.registry,
		builder.jobEnqueuer,
		builder.logger,
	)
	if err != nil {
		return nil, err
	}

	worker, err := NewDispatchWorker(
		builder.recordStore,
		builder.registry,
		proxies,
		builder.composer,
		DispatchWorkerConfig{
			SendTimeout: time.Duration(resolved.Dispatch.SendTimeoutSeconds) * time.Second,
		},
		builder.logger,
		builder.metricsRecorder,
	)
	if err != nil {
		return nil, err
	}

	pipeline, err := NewValidityCheckPipeline(
		builder.recordStore,
		builder.verifier,
		builder.jobEnqueuer,
		builder.logger,
		builder.metricsRecorder,
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:          resolved,
		logger:          builder.logger,
		loggerProvider:  builder.loggerProvider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		registry:        builder.registry,
		records:         builder.recordStore,
		proxies:         proxies,
		jobs:            builder.jobEnqueuer,
		coordinator:     coordinator,
		worker:          worker,
		pipeline:        pipeline,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Registry() Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

// GetRecord loads one delivery record.
func (s *Service) GetRecord(ctx context.Context, id string) (DeliveryRecord, error) {
	if s == nil || s.records == nil {
		return DeliveryRecord{}, fmt.Errorf("core: service is not configured")
	}
	record, err := s.records.Get(ctx, id)
	if err != nil {
		return DeliveryRecord{}, s.mapError(err)
	}
	return record, nil
}

// CreateRecord registers a new address with the delivery subsystem. New
// records start pending with unknown validity.
func (s *Service) CreateRecord(ctx context.Context, record DeliveryRecord) (DeliveryRecord, error) {
	startedAt := time.Now()
	created, err := s.createRecord(ctx, record)
	s.observeOperation(ctx, startedAt, "record_create", err, map[string]any{
		"record_id": created.ID,
	})
	return created, err
}

func (s *Service) createRecord(ctx context.Context, record DeliveryRecord) (DeliveryRecord, error) {
	if s == nil || s.records == nil {
		return DeliveryRecord{}, fmt.Errorf("core: service is not configured")
	}
	if record.Status == "" {
		record.Status = DeliveryStatusPending
	}
	if record.Validity == "" {
		record.Validity = EmailValidityUnknown
	}
	created, err := s.records.Create(ctx, record)
	if err != nil {
		return DeliveryRecord{}, s.mapError(err)
	}
	return created, nil
}

// QueueRecord queues one record for dispatch through the named provider,
// or the record's provider, or the configured default.
func (s *Service) QueueRecord(ctx context.Context, recordID, provider string) error {
	startedAt := time.Now()
	err := s.queueRecord(ctx, recordID, provider)
	s.observeOperation(ctx, startedAt, "queue_record", err, map[string]any{
		"record_id": recordID,
		"provider":  provider,
	})
	return err
}

func (s *Service) queueRecord(ctx context.Context, recordID, provider string) error {
	if s == nil || s.coordinator == nil {
		return fmt.Errorf("core: service is not configured")
	}
	if err := s.coordinator.QueueRecord(ctx, recordID, provider); err != nil {
		return s.mapError(err)
	}
	return nil
}

// QueueBatch queues an explicit id list; ineligible records are skipped
// and counted, never fatal.
func (s *Service) QueueBatch(ctx context.Context, recordIDs []string, provider string) (DispatchReport, error) {
	startedAt := time.Now()
	report, err := s.queueBatch(ctx, recordIDs, provider)
	s.observeOperation(ctx, startedAt, "queue_batch", err, map[string]any{
		"provider": provider,
		"queued":   report.Queued,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
	})
	return report, err
}

func (s *Service) queueBatch(ctx context.Context, recordIDs []string, provider string) (DispatchReport, error) {
	if s == nil || s.coordinator == nil {
		return DispatchReport{}, fmt.Errorf("core: service is not configured")
	}
	report, err := s.coordinator.QueueBatch(ctx, recordIDs, provider)
	if err != nil {
		return report, s.mapError(err)
	}
	return report, nil
}

// QueueAllEligible queues every record in the given status subset
// (pending and failed when empty) whose email is known-valid.
func (s *Service) QueueAllEligible(ctx context.Context, statuses []DeliveryStatus, provider string) (DispatchReport, error) {
	startedAt := time.Now()
	report, err := s.queueAllEligible(ctx, statuses, provider)
	s.observeOperation(ctx, startedAt, "queue_all_eligible", err, map[string]any{
		"provider": provider,
		"queued":   report.Queued,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
	})
	return report, err
}

func (s *Service) queueAllEligible(ctx context.Context, statuses []DeliveryStatus, provider string) (DispatchReport, error) {
	if s == nil || s.coordinator == nil {
		return DispatchReport{}, fmt.Errorf("core: service is not configured")
	}
	report, err := s.coordinator.QueueAllEligible(ctx, statuses, provider)
	if err != nil {
		return report, s.mapError(err)
	}
	return report, nil
}

// DispatchRecord runs one dispatch unit. The job runtime is the normal
// caller; operators can invoke it directly for a stuck record.
func (s *Service) DispatchRecord(ctx context.Context, item DispatchItem) error {
	startedAt := time.Now()
	err := s.dispatchRecord(ctx, item)
	s.observeOperation(ctx, startedAt, "dispatch_record", err, map[string]any{
		"record_id": item.RecordID,
		"provider":  item.Provider,
	})
	return err
}

func (s *Service) dispatchRecord(ctx context.Context, item DispatchItem) error {
	if s == nil || s.worker == nil {
		return fmt.Errorf("core: service is not configured")
	}
	if err := s.worker.Execute(ctx, item); err != nil {
		return s.mapError(err)
	}
	return nil
}

// ResetRecord returns a record to pending, clearing the sent timestamp
// and last error. Queued and sending records cannot be reset.
func (s *Service) ResetRecord(ctx context.Context, recordID string) error {
	startedAt := time.Now()
	err := s.resetRecord(ctx, recordID)
	s.observeOperation(ctx, startedAt, "reset_record", err, map[string]any{
		"record_id": recordID,
	})
	return err
}

func (s *Service) resetRecord(ctx context.Context, recordID string) error {
	if s == nil || s.records == nil {
		return fmt.Errorf("core: service is not configured")
	}
	if err := s.records.ResetDelivery(ctx, recordID); err != nil {
		return s.mapError(err)
	}
	return nil
}

// ResetBatch resets each id that is in a resettable state and reports how
// many were reset. In-flight records are skipped.
func (s *Service) ResetBatch(ctx context.Context, recordIDs []string) (int, error) {
	startedAt := time.Now()
	reset, err := s.resetBatch(ctx, recordIDs)
	s.observeOperation(ctx, startedAt, "reset_batch", err, map[string]any{
		"requested": len(recordIDs),
		"reset":     reset,
	})
	return reset, err
}

func (s *Service) resetBatch(ctx context.Context, recordIDs []string) (int, error) {
	if s == nil || s.records == nil {
		return 0, fmt.Errorf("core: service is not configured")
	}
	reset := 0
	for _, recordID := range recordIDs {
		if err := s.records.ResetDelivery(ctx, recordID); err != nil {
			if isGuardRejection(err) {
				continue
			}
			return reset, s.mapError(err)
		}
		reset++
	}
	return reset, nil
}

// StartValidityCheck kicks off the chunked re-validation pipeline and
// returns how much work it saw. Zero or out-of-range chunk sizes fall
// back to the configured default.
func (s *Service) StartValidityCheck(ctx context.Context, chunkSize int) (StartReport, error) {
	startedAt := time.Now()
	report, err := s.startValidityCheck(ctx, chunkSize)
	s.observeOperation(ctx, startedAt, "validity_start", err, map[string]any{
		"chunk_size": report.ChunkSize,
		"eligible":   report.Eligible,
	})
	return report, err
}

func (s *Service) startValidityCheck(ctx context.Context, chunkSize int) (StartReport, error) {
	if s == nil || s.pipeline == nil {
		return StartReport{}, fmt.Errorf("core: service is not configured")
	}
	if chunkSize == 0 {
		chunkSize = s.config.Validity.ChunkSize
	}
	report, err := s.pipeline.Start(ctx, chunkSize)
	if err != nil {
		return report, s.mapError(err)
	}
	return report, nil
}

// RunValidityChunk processes one chunk. The job runtime is the caller.
func (s *Service) RunValidityChunk(ctx context.Context, chunk ValidityChunk) (ChunkReport, error) {
	startedAt := time.Now()
	report, err := s.runValidityChunk(ctx, chunk)
	s.observeOperation(ctx, startedAt, "validity_chunk", err, map[string]any{
		"chunk_size": chunk.ChunkSize,
		"after_id":   chunk.AfterID,
		"processed":  report.Processed,
		"errored":    report.Errored,
	})
	return report, err
}

func (s *Service) runValidityChunk(ctx context.Context, chunk ValidityChunk) (ChunkReport, error) {
	if s == nil || s.pipeline == nil {
		return ChunkReport{}, fmt.Errorf("core: service is not configured")
	}
	report, err := s.pipeline.RunChunk(ctx, chunk)
	if err != nil {
		return report, s.mapError(err)
	}
	return report, nil
}

// ProviderStatus reports every registered provider with its availability.
func (s *Service) ProviderStatus() []ProviderDescriptor {
	if s == nil || s.registry == nil {
		return nil
	}
	return s.registry.Descriptors()
}

// TestProvider validates a provider's configuration and probes its
// transport endpoint.
func (s *Service) TestProvider(ctx context.Context, name string) error {
	startedAt := time.Now()
	err := s.testProvider(ctx, name)
	s.observeOperation(ctx, startedAt, "provider_test", err, map[string]any{
		"provider": name,
	})
	return err
}

func (s *Service) testProvider(ctx context.Context, name string) error {
	if s == nil || s.registry == nil {
		return fmt.Errorf("core: service is not configured")
	}
	resolved, err := s.registry.ResolveName(name)
	if err != nil {
		return s.mapError(err)
	}
	provider, err := s.registry.Resolve(resolved)
	if err != nil {
		return s.mapError(err)
	}
	if err := provider.TestConnection(ctx); err != nil {
		return s.mapError(fmt.Errorf("%w: %s: %v", ErrTransportFailure, resolved, err))
	}
	return nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}
