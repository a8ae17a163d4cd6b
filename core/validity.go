package core

import (
	"context"
	"fmt"
	"time"
)

// ValidityCheckPipeline re-validates addresses across the whole record set
// in fixed-size chunks. Each chunk is an independently schedulable unit
// that enqueues its own successor, so at most one chunk is in flight and
// memory stays bounded by the chunk size regardless of record count.
//
// The cursor travels inside the continuation message: each chunk queries
// records with validity != valid and id past the previous chunk's last
// record, so a run visits every record at most once even when verdicts
// come back invalid. Records a run skipped over (invalid verdicts,
// transient verification trouble) are picked up again by the next Start,
// which begins from an empty cursor; a re-run over a fully validated set
// observes zero work.
type ValidityCheckPipeline struct {
	records  DeliveryRecordStore
	verifier AddressVerifier
	jobs     JobEnqueuer
	logger   Logger
	metrics  MetricsRecorder
	now      func() time.Time
}

func NewValidityCheckPipeline(
	records DeliveryRecordStore,
	verifier AddressVerifier,
	jobs JobEnqueuer,
	logger Logger,
	metrics MetricsRecorder,
) (*ValidityCheckPipeline, error) {
	if records == nil {
		return nil, fmt.Errorf("core: delivery record store is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("core: address verifier is required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("core: job enqueuer is required")
	}
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return &ValidityCheckPipeline{
		records:  records,
		verifier: verifier,
		jobs:     jobs,
		logger:   logger,
		metrics:  metrics,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// StartReport is what the operator gets back immediately; the pipeline
// itself proceeds asynchronously.
type StartReport struct {
	Eligible  int
	ChunkSize int
}

// ChunkReport summarizes one chunk invocation.
type ChunkReport struct {
	Processed int
	Valid     int
	Invalid   int
	Errored   int
	Continued bool
}

// Start counts the currently eligible records and schedules the first
// chunk. A pipeline over an already fully validated set schedules one
// chunk that observes zero records and stops.
func (p *ValidityCheckPipeline) Start(ctx context.Context, chunkSize int) (StartReport, error) {
	if p == nil || p.records == nil {
		return StartReport{}, fmt.Errorf("core: validity pipeline is not configured")
	}
	chunkSize = ClampChunkSize(chunkSize)

	eligible, err := p.records.CountUnverified(ctx)
	if err != nil {
		return StartReport{}, err
	}
	if err := p.jobs.Enqueue(ctx, NewValidityChunkJobMessage(chunkSize, "")); err != nil {
		return StartReport{}, err
	}
	return StartReport{Eligible: eligible, ChunkSize: chunkSize}, nil
}

// RunChunk processes one chunk and schedules the next one iff this chunk
// saw any records. The successor carries the last processed id as its
// cursor, so the cursor strictly advances and the run terminates even
// when some records are judged invalid and stay unverified. A
// verification failure on one record leaves that record unchanged and
// never aborts the chunk.
func (p *ValidityCheckPipeline) RunChunk(ctx context.Context, chunk ValidityChunk) (ChunkReport, error) {
	if p == nil || p.records == nil {
		return ChunkReport{}, fmt.Errorf("core: validity pipeline is not configured")
	}
	chunkSize := ClampChunkSize(chunk.ChunkSize)

	records, err := p.records.ListUnverified(ctx, chunk.AfterID, chunkSize)
	if err != nil {
		return ChunkReport{}, err
	}
	if len(records) == 0 {
		p.logInfo(ctx, "validity pipeline drained, no further chunk scheduled")
		return ChunkReport{}, nil
	}

	report := ChunkReport{Processed: len(records)}
	for _, record := range records {
		verdict, verifyErr := p.verifier.Verify(ctx, record.Email)
		if verifyErr != nil {
			// Transient check trouble: leave the record for the next run.
			report.Errored++
			p.logWarn(ctx, "address verification failed, record left unchanged",
				"record_id", record.ID, "error", verifyErr)
			continue
		}
		if saveErr := p.records.SaveVerdict(ctx, record.ID, verdict, p.now()); saveErr != nil {
			report.Errored++
			p.logWarn(ctx, "verdict not persisted, record left unchanged",
				"record_id", record.ID, "error", saveErr)
			continue
		}
		if verdict.Valid {
			report.Valid++
		} else {
			report.Invalid++
		}
	}

	p.metrics.IncCounter(ctx, "mailroom.validity.chunks.total", 1, map[string]string{})
	p.metrics.IncCounter(ctx, "mailroom.validity.records.total", int64(report.Processed), map[string]string{})

	if err := p.jobs.Enqueue(ctx, NewValidityChunkJobMessage(chunkSize, records[len(records)-1].ID)); err != nil {
		return report, err
	}
	report.Continued = true
	p.logInfo(ctx, "validity chunk processed",
		"processed", report.Processed,
		"valid", report.Valid,
		"invalid", report.Invalid,
		"errored", report.Errored)
	return report, nil
}

func (p *ValidityCheckPipeline) logInfo(ctx context.Context, message string, args ...any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.WithContext(ctx).Info(message, args...)
}

func (p *ValidityCheckPipeline) logWarn(ctx context.Context, message string, args ...any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.WithContext(ctx).Warn(message, args...)
}
