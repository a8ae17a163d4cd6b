package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DispatchWorker executes one unit of work: one queued record, one send.
// Transport failures are recorded on the record and swallowed; the queue
// layer's retry policy decides whether the unit runs again.
type DispatchWorker struct {
	records  DeliveryRecordStore
	registry Registry
	proxies  *ProxyResolver
	composer MessageComposer
	timeout  time.Duration
	logger   Logger
	metrics  MetricsRecorder
	now      func() time.Time
}

type DispatchWorkerConfig struct {
	SendTimeout time.Duration
}

func NewDispatchWorker(
	records DeliveryRecordStore,
	registry Registry,
	proxies *ProxyResolver,
	composer MessageComposer,
	cfg DispatchWorkerConfig,
	logger Logger,
	metrics MetricsRecorder,
) (*DispatchWorker, error) {
	if records == nil {
		return nil, fmt.Errorf("core: delivery record store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("core: provider registry is required")
	}
	if composer == nil {
		return nil, fmt.Errorf("core: message composer is required")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = time.Duration(DefaultSendTimeoutSecs) * time.Second
	}
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return &DispatchWorker{
		records:  records,
		registry: registry,
		proxies:  proxies,
		composer: composer,
		timeout:  cfg.SendTimeout,
		logger:   logger,
		metrics:  metrics,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Execute processes one dispatch item. The record must already be queued;
// dispatch never self-queues. A record that lost its queued status in the
// meantime is skipped without error.
func (w *DispatchWorker) Execute(ctx context.Context, item DispatchItem) error {
	if w == nil || w.records == nil {
		return fmt.Errorf("core: dispatch worker is not configured")
	}
	recordID := strings.TrimSpace(item.RecordID)
	if recordID == "" {
		return fmt.Errorf("core: record id is required")
	}

	record, err := w.records.MarkSending(ctx, recordID)
	if err != nil {
		if errors.Is(err, ErrIneligibleState) || errors.Is(err, ErrRecordNotFound) {
			w.logWarn(ctx, "dispatch unit skipped, record no longer queued",
				"record_id", recordID, "error", err)
			return nil
		}
		return err
	}

	providerName := strings.TrimSpace(item.Provider)
	if providerName == "" {
		providerName = strings.TrimSpace(record.Provider)
	}
	sendErr := w.send(ctx, record, providerName)
	if sendErr != nil {
		w.observeSend(ctx, providerName, false)
		w.logError(ctx, "delivery failed",
			"record_id", recordID, "provider", providerName, "error", sendErr)
		if markErr := w.records.MarkFailed(ctx, recordID, sendErr.Error()); markErr != nil {
			return markErr
		}
		// Recorded, not re-raised: retries are the queue's policy.
		return nil
	}

	if err := w.records.MarkSent(ctx, recordID, w.now()); err != nil {
		return err
	}
	w.observeSend(ctx, providerName, true)
	w.logInfo(ctx, "delivery sent", "record_id", recordID, "provider", providerName)
	return nil
}

func (w *DispatchWorker) send(ctx context.Context, record DeliveryRecord, providerName string) error {
	provider, err := w.registry.Resolve(providerName)
	if err != nil {
		return err
	}
	if err := w.registry.ValidateConfig(providerName); err != nil {
		return err
	}

	routing := DirectRouting()
	if w.proxies != nil {
		routing, err = w.proxies.Resolve(ctx, record.ProxyID)
		if err != nil {
			return err
		}
	}

	msg, err := w.composer.Compose(ctx, record)
	if err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		msg.To = record.Email
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := provider.Send(sendCtx, msg, routing); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransportFailure, providerName, err)
	}
	return nil
}

func (w *DispatchWorker) observeSend(ctx context.Context, provider string, success bool) {
	status := "failure"
	if success {
		status = "success"
	}
	w.metrics.IncCounter(ctx, "mailroom.dispatch.total", 1, map[string]string{
		"provider": provider,
		"status":   status,
	})
}

func (w *DispatchWorker) logInfo(ctx context.Context, message string, args ...any) {
	if w == nil || w.logger == nil {
		return
	}
	w.logger.WithContext(ctx).Info(message, args...)
}

func (w *DispatchWorker) logWarn(ctx context.Context, message string, args ...any) {
	if w == nil || w.logger == nil {
		return
	}
	w.logger.WithContext(ctx).Warn(message, args...)
}

func (w *DispatchWorker) logError(ctx context.Context, message string, args ...any) {
	if w == nil || w.logger == nil {
		return
	}
	w.logger.WithContext(ctx).Error(message, args...)
}

// StaticComposer satisfies MessageComposer with pre-rendered content; the
// panel renders templates upstream and hands the worker final text.
type StaticComposer struct {
	Subject string
	Body    string
}

func (c StaticComposer) Compose(_ context.Context, record DeliveryRecord) (Message, error) {
	return Message{
		To:      record.Email,
		Subject: c.Subject,
		Body:    c.Body,
	}, nil
}

var _ MessageComposer = StaticComposer{}
