package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DispatchReport carries the counts a bulk queue operation reports back.
// Partial success is the normal case: ineligible records are skipped, not
// treated as failures of the whole operation.
type DispatchReport struct {
	Queued  int
	Skipped int
	Failed  int
}

// BulkDispatchCoordinator fans a selected set of records out into
// individual dispatch jobs. All entry modes converge on the store's
// conditional MarkQueued guard, so each queued record is owned by exactly
// one worker until the send completes.
type BulkDispatchCoordinator struct {
	records  DeliveryRecordStore
	registry Registry
	jobs     JobEnqueuer
	logger   Logger
}

func NewBulkDispatchCoordinator(
	records DeliveryRecordStore,
	registry Registry,
	jobs JobEnqueuer,
	logger Logger,
) (*BulkDispatchCoordinator, error) {
	if records == nil {
		return nil, fmt.Errorf("core: delivery record store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("core: provider registry is required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("core: job enqueuer is required")
	}
	return &BulkDispatchCoordinator{
		records:  records,
		registry: registry,
		jobs:     jobs,
		logger:   logger,
	}, nil
}

// QueueRecord queues a single record and surfaces guard failures to the
// caller; no job is spawned when the guard rejects.
func (c *BulkDispatchCoordinator) QueueRecord(ctx context.Context, recordID, providerName string) error {
	if c == nil || c.records == nil {
		return fmt.Errorf("core: dispatch coordinator is not configured")
	}
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return fmt.Errorf("core: record id is required")
	}

	name, err := c.providerFor(ctx, recordID, providerName)
	if err != nil {
		return err
	}
	if _, err := c.records.MarkQueued(ctx, recordID, name); err != nil {
		return err
	}
	return c.enqueue(ctx, recordID, name)
}

// QueueBatch queues every eligible record of an explicit id list. Records
// failing the guard are skipped and counted; provider resolution problems
// are hard errors raised before anything is queued.
func (c *BulkDispatchCoordinator) QueueBatch(ctx context.Context, recordIDs []string, providerName string) (DispatchReport, error) {
	if c == nil || c.records == nil {
		return DispatchReport{}, fmt.Errorf("core: dispatch coordinator is not configured")
	}
	name, err := c.registry.ResolveName(providerName)
	if err != nil {
		return DispatchReport{}, err
	}

	report := DispatchReport{}
	for _, recordID := range recordIDs {
		recordID = strings.TrimSpace(recordID)
		if recordID == "" {
			report.Skipped++
			continue
		}
		if _, err := c.records.MarkQueued(ctx, recordID, name); err != nil {
			if isGuardRejection(err) {
				report.Skipped++
				continue
			}
			report.Failed++
			c.logSkip(ctx, recordID, err)
			continue
		}
		if err := c.enqueue(ctx, recordID, name); err != nil {
			report.Failed++
			c.logSkip(ctx, recordID, err)
			continue
		}
		report.Queued++
	}
	return report, nil
}

// QueueAllEligible queues every record whose status is in the given
// subset (pending and failed when empty) and whose email is known-valid.
func (c *BulkDispatchCoordinator) QueueAllEligible(ctx context.Context, statuses []DeliveryStatus, providerName string) (DispatchReport, error) {
	if c == nil || c.records == nil {
		return DispatchReport{}, fmt.Errorf("core: dispatch coordinator is not configured")
	}
	for _, status := range statuses {
		switch status {
		case DeliveryStatusPending, DeliveryStatusFailed:
		default:
			return DispatchReport{}, fmt.Errorf("core: invalid eligibility filter %q", status)
		}
	}
	name, err := c.registry.ResolveName(providerName)
	if err != nil {
		return DispatchReport{}, err
	}

	eligible, err := c.records.ListEligible(ctx, statuses)
	if err != nil {
		return DispatchReport{}, err
	}

	report := DispatchReport{}
	for _, record := range eligible {
		// The list is a snapshot; the conditional update is what decides.
		if _, err := c.records.MarkQueued(ctx, record.ID, name); err != nil {
			if isGuardRejection(err) {
				report.Skipped++
				continue
			}
			report.Failed++
			c.logSkip(ctx, record.ID, err)
			continue
		}
		if err := c.enqueue(ctx, record.ID, name); err != nil {
			report.Failed++
			c.logSkip(ctx, record.ID, err)
			continue
		}
		report.Queued++
	}
	return report, nil
}

// providerFor resolves the provider for a single-record queue: explicit
// name, then the record's last provider, then the registry default.
func (c *BulkDispatchCoordinator) providerFor(ctx context.Context, recordID, providerName string) (string, error) {
	providerName = strings.TrimSpace(providerName)
	if providerName == "" {
		record, err := c.records.Get(ctx, recordID)
		if err != nil {
			return "", err
		}
		providerName = strings.TrimSpace(record.Provider)
	}
	return c.registry.ResolveName(providerName)
}

func (c *BulkDispatchCoordinator) enqueue(ctx context.Context, recordID, provider string) error {
	return c.jobs.Enqueue(ctx, NewDispatchJobMessage(recordID, provider))
}

func (c *BulkDispatchCoordinator) logSkip(ctx context.Context, recordID string, err error) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.WithContext(ctx).Warn("record not queued", "record_id", recordID, "error", err)
}

func isGuardRejection(err error) bool {
	return errors.Is(err, ErrIneligibleState) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrRecordNotFound)
}
