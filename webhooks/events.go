package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-mailroom/core"
)

type EventKind string

const (
	EventDelivered  EventKind = "delivered"
	EventBounced    EventKind = "bounced"
	EventDropped    EventKind = "dropped"
	EventComplained EventKind = "complained"
)

// Event is one normalized delivery event, independent of which provider
// reported it.
type Event struct {
	Provider  string
	Kind      EventKind
	EventID   string
	RecordID  string
	Email     string
	Reason    string
	Permanent bool
	Timestamp time.Time
}

type EventParser func(req Request) ([]Event, error)

// ParseMailgunEvents decodes one event-data envelope. Mailgun posts a
// single event per callback; the delivery record id rides in
// user-variables.
func ParseMailgunEvents(req Request) ([]Event, error) {
	var payload struct {
		EventData struct {
			ID        string  `json:"id"`
			Event     string  `json:"event"`
			Severity  string  `json:"severity"`
			Recipient string  `json:"recipient"`
			Reason    string  `json:"reason"`
			Timestamp float64 `json:"timestamp"`
			UserVars  struct {
				RecordID string `json:"record_id"`
			} `json:"user-variables"`
			DeliveryStatus struct {
				Description string `json:"description"`
				Message     string `json:"message"`
			} `json:"delivery-status"`
		} `json:"event-data"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, fmt.Errorf("webhooks: decode mailgun payload: %w", err)
	}
	data := payload.EventData
	if strings.TrimSpace(data.Event) == "" {
		return nil, fmt.Errorf("webhooks: mailgun payload has no event")
	}

	event := Event{
		Provider:  "mailgun",
		EventID:   strings.TrimSpace(data.ID),
		RecordID:  strings.TrimSpace(data.UserVars.RecordID),
		Email:     strings.TrimSpace(data.Recipient),
		Reason:    strings.TrimSpace(data.Reason),
		Permanent: strings.EqualFold(data.Severity, "permanent"),
		Timestamp: time.Unix(int64(data.Timestamp), 0).UTC(),
	}
	if event.Reason == "" {
		event.Reason = strings.TrimSpace(data.DeliveryStatus.Description)
	}
	if event.Reason == "" {
		event.Reason = strings.TrimSpace(data.DeliveryStatus.Message)
	}

	switch strings.ToLower(strings.TrimSpace(data.Event)) {
	case "delivered":
		event.Kind = EventDelivered
	case "failed":
		event.Kind = EventBounced
	case "complained":
		event.Kind = EventComplained
		event.Permanent = true
	default:
		return []Event{}, nil
	}
	return []Event{event}, nil
}

// ParseSendgridEvents decodes a sendgrid event batch. The delivery
// record id rides in custom args, flattened onto each event object.
func ParseSendgridEvents(req Request) ([]Event, error) {
	var payload []struct {
		Event     string `json:"event"`
		Email     string `json:"email"`
		Reason    string `json:"reason"`
		Type      string `json:"type"`
		SGEventID string `json:"sg_event_id"`
		RecordID  string `json:"record_id"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, fmt.Errorf("webhooks: decode sendgrid payload: %w", err)
	}

	events := make([]Event, 0, len(payload))
	for _, item := range payload {
		event := Event{
			Provider:  "sendgrid",
			EventID:   strings.TrimSpace(item.SGEventID),
			RecordID:  strings.TrimSpace(item.RecordID),
			Email:     strings.TrimSpace(item.Email),
			Reason:    strings.TrimSpace(item.Reason),
			Timestamp: time.Unix(item.Timestamp, 0).UTC(),
		}
		switch strings.ToLower(strings.TrimSpace(item.Event)) {
		case "delivered":
			event.Kind = EventDelivered
		case "bounce":
			event.Kind = EventBounced
			event.Permanent = !strings.EqualFold(item.Type, "blocked")
		case "dropped":
			event.Kind = EventDropped
			event.Permanent = true
		case "spamreport":
			event.Kind = EventComplained
			event.Permanent = true
		default:
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// VerdictWriter is the slice of the delivery record store the event
// handler needs: recording that an address turned out to be bad.
type VerdictWriter interface {
	SaveVerdict(ctx context.Context, id string, verdict core.Verdict, at time.Time) error
}

// RecordEventHandler folds parsed events back into delivery records. A
// permanent bounce, drop or complaint marks the address invalid so the
// next dispatch attempt is refused before any transport work.
type RecordEventHandler struct {
	Parser EventParser
	Store  VerdictWriter
	Logger core.Logger
	Now    func() time.Time
}

func NewRecordEventHandler(parser EventParser, store VerdictWriter) *RecordEventHandler {
	return &RecordEventHandler{
		Parser: parser,
		Store:  store,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (h *RecordEventHandler) Handle(ctx context.Context, req Request) (Result, error) {
	if h == nil || h.Parser == nil || h.Store == nil {
		return Result{}, fmt.Errorf("webhooks: event handler requires parser and store")
	}

	events, err := h.Parser(req)
	if err != nil {
		return Result{Accepted: false, StatusCode: http.StatusBadRequest}, err
	}

	applied := 0
	skipped := 0
	for _, event := range events {
		if !invalidatesAddress(event) {
			continue
		}
		if event.RecordID == "" {
			skipped++
			continue
		}
		verdict := core.Verdict{Valid: false, Reason: invalidityReason(event)}
		if err := h.Store.SaveVerdict(ctx, event.RecordID, verdict, h.now()); err != nil {
			if h.Logger != nil {
				h.Logger.Warn("webhook verdict not applied",
					"record_id", event.RecordID,
					"provider", event.Provider,
					"error", err,
				)
			}
			skipped++
			continue
		}
		applied++
	}

	return Result{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"events":  len(events),
			"applied": applied,
			"skipped": skipped,
		},
	}, nil
}

func (h *RecordEventHandler) now() time.Time {
	if h != nil && h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func invalidatesAddress(event Event) bool {
	switch event.Kind {
	case EventBounced, EventDropped:
		return event.Permanent
	case EventComplained:
		return true
	default:
		return false
	}
}

func invalidityReason(event Event) string {
	if event.Reason != "" {
		return event.Reason
	}
	switch event.Kind {
	case EventComplained:
		return "recipient complained"
	case EventDropped:
		return "provider dropped the message"
	default:
		return "hard bounce"
	}
}

var _ Handler = (*RecordEventHandler)(nil)
