package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	EventStatusPending    = "pending"
	EventStatusProcessing = "processing"
	EventStatusProcessed  = "processed"
	EventStatusRetryReady = "retry_ready"
	EventStatusDead       = "dead"
)

// Request is one inbound provider callback, already read off the wire.
// The HTTP surface that produces it is owned by the embedding app.
type Request struct {
	Provider string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type Result struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

// EventRecord is one ledger row tracking a provider callback through the
// claim lifecycle.
type EventRecord struct {
	ID            string
	ClaimID       string
	Provider      string
	EventID       string
	Status        string
	Attempts      int
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type EventLedger interface {
	Claim(
		ctx context.Context,
		provider string,
		eventID string,
		payload []byte,
		lease time.Duration,
	) (EventRecord, bool, error)
	Get(ctx context.Context, provider string, eventID string) (EventRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

type EventIDExtractor func(req Request) (string, error)

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type Handler interface {
	Handle(ctx context.Context, req Request) (Result, error)
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

type Processor struct {
	Verifier    Verifier
	Ledger      EventLedger
	Handler     Handler
	ExtractID   EventIDExtractor
	Burst       BurstController
	RetryPolicy RetryPolicy
	// AllowAcceptedServerErrors changes default retry behavior for accepted 5xx handler responses.
	// Default (false): accepted 5xx responses are treated as retryable errors.
	AllowAcceptedServerErrors bool
	ClaimLease                time.Duration
	MaxAttempts               int
	Now                       func() time.Time
}

func NewProcessor(verifier Verifier, ledger EventLedger, handler Handler) *Processor {
	return &Processor{
		Verifier:                  verifier,
		Ledger:                    ledger,
		Handler:                   handler,
		ExtractID:                 DefaultEventIDExtractor,
		RetryPolicy:               ExponentialRetryPolicy{},
		AllowAcceptedServerErrors: false,
		ClaimLease:                30 * time.Second,
		MaxAttempts:               8,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return Result{}, fmt.Errorf("webhooks: processor requires handler and ledger")
	}

	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		return Result{}, fmt.Errorf("webhooks: provider is required")
	}
	req.Provider = provider

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			return Result{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"provider": provider,
					"rejected": true,
				},
			}, err
		}
	}

	extractor := p.ExtractID
	if extractor == nil {
		extractor = DefaultEventIDExtractor
	}
	eventID, err := extractor(req)
	if err != nil {
		return Result{}, err
	}

	event, claimed, err := p.Ledger.Claim(ctx, provider, eventID, req.Body, p.claimLease())
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		return Result{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"provider": provider,
				"event_id": event.EventID,
				"status":   event.Status,
				"deduped":  true,
			},
		}, nil
	}

	if p.Burst != nil {
		decision, burstErr := p.Burst.Allow(ctx, req)
		if burstErr != nil {
			return Result{}, burstErr
		}
		if !decision.Allow {
			if markErr := p.Ledger.Complete(ctx, event.ClaimID); markErr != nil {
				return Result{}, markErr
			}
			metadata := ensureMetadata(decision.Metadata)
			metadata["provider"] = provider
			metadata["event_id"] = eventID
			metadata["deduped"] = true
			return Result{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata:   metadata,
			}, nil
		}
	}

	result, err := p.Handler.Handle(ctx, req)
	if err != nil {
		nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(event.Attempts))
		_ = p.Ledger.Fail(ctx, event.ClaimID, err, nextAttemptAt, p.maxAttempts())
		return Result{}, err
	}

	retryableServerFailure := result.StatusCode >= http.StatusInternalServerError &&
		(!result.Accepted || !p.AllowAcceptedServerErrors)
	if !result.Accepted || retryableServerFailure {
		retryErr := fmt.Errorf("webhooks: event handler returned retryable status %d", result.StatusCode)
		nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(event.Attempts))
		_ = p.Ledger.Fail(ctx, event.ClaimID, retryErr, nextAttemptAt, p.maxAttempts())
		return result, retryErr
	}

	if err := p.Ledger.Complete(ctx, event.ClaimID); err != nil {
		return Result{}, err
	}
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["provider"] = provider
	result.Metadata["event_id"] = eventID
	return result, nil
}

// DefaultEventIDExtractor looks in the places the built-in providers put
// their event ids: parsed metadata first, then signature headers.
func DefaultEventIDExtractor(req Request) (string, error) {
	if req.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["event_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["message_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
	}
	if req.Headers != nil {
		if value := headerValue(req.Headers, "x-event-id"); value != "" {
			return value, nil
		}
		if value := headerValue(req.Headers, "x-mailgun-sid"); value != "" {
			return value, nil
		}
		if value := headerValue(req.Headers, "x-twilio-email-event-webhook-timestamp"); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("webhooks: event id is required for dedupe")
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return 30 * time.Second
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
