package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-mailroom/core"
)

func TestParseMailgunEvents(t *testing.T) {
	body := []byte(`{
		"event-data": {
			"id": "CPgfbmQMTCKtHW6uIWtuVe",
			"event": "failed",
			"severity": "permanent",
			"recipient": "person@example.com",
			"reason": "suppress-bounce",
			"timestamp": 1756300000,
			"user-variables": {"record_id": "rec-001"}
		}
	}`)

	events, err := ParseMailgunEvents(Request{Provider: "mailgun", Body: body})
	if err != nil {
		t.Fatalf("parse mailgun events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	event := events[0]
	if event.Kind != EventBounced || !event.Permanent {
		t.Fatalf("expected permanent bounce, got %+v", event)
	}
	if event.RecordID != "rec-001" || event.Email != "person@example.com" {
		t.Fatalf("unexpected event identity: %+v", event)
	}
	if event.EventID != "CPgfbmQMTCKtHW6uIWtuVe" {
		t.Fatalf("unexpected event id: %q", event.EventID)
	}
}

func TestParseMailgunEvents_IgnoresUnknownEventTypes(t *testing.T) {
	body := []byte(`{"event-data": {"id": "x", "event": "opened"}}`)
	events, err := ParseMailgunEvents(Request{Body: body})
	if err != nil {
		t.Fatalf("parse mailgun events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected opened event to be dropped, got %d", len(events))
	}
}

func TestParseSendgridEvents(t *testing.T) {
	body := []byte(`[
		{"event": "delivered", "email": "a@example.com", "sg_event_id": "ev-1", "record_id": "rec-001", "timestamp": 1756300000},
		{"event": "bounce", "type": "bounce", "email": "b@example.com", "reason": "550 mailbox unavailable", "sg_event_id": "ev-2", "record_id": "rec-002", "timestamp": 1756300001},
		{"event": "bounce", "type": "blocked", "email": "c@example.com", "sg_event_id": "ev-3", "record_id": "rec-003", "timestamp": 1756300002},
		{"event": "open", "email": "d@example.com", "sg_event_id": "ev-4", "timestamp": 1756300003}
	]`)

	events, err := ParseSendgridEvents(Request{Provider: "sendgrid", Body: body})
	if err != nil {
		t.Fatalf("parse sendgrid events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected three events, got %d", len(events))
	}
	if events[0].Kind != EventDelivered || events[0].Permanent {
		t.Fatalf("unexpected delivered event: %+v", events[0])
	}
	if events[1].Kind != EventBounced || !events[1].Permanent {
		t.Fatalf("expected permanent bounce: %+v", events[1])
	}
	if events[2].Kind != EventBounced || events[2].Permanent {
		t.Fatalf("expected transient block: %+v", events[2])
	}
}

type capturingVerdictWriter struct {
	verdicts map[string]core.Verdict
	err      error
}

func (w *capturingVerdictWriter) SaveVerdict(_ context.Context, id string, verdict core.Verdict, _ time.Time) error {
	if w.err != nil {
		return w.err
	}
	if w.verdicts == nil {
		w.verdicts = map[string]core.Verdict{}
	}
	w.verdicts[id] = verdict
	return nil
}

func TestRecordEventHandler_AppliesPermanentBounces(t *testing.T) {
	store := &capturingVerdictWriter{}
	handler := NewRecordEventHandler(ParseSendgridEvents, store)
	handler.Now = func() time.Time {
		return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	}

	body := []byte(`[
		{"event": "delivered", "email": "a@example.com", "sg_event_id": "ev-1", "record_id": "rec-001", "timestamp": 1},
		{"event": "bounce", "type": "bounce", "email": "b@example.com", "reason": "550 mailbox unavailable", "sg_event_id": "ev-2", "record_id": "rec-002", "timestamp": 2},
		{"event": "spamreport", "email": "c@example.com", "sg_event_id": "ev-3", "record_id": "rec-003", "timestamp": 3},
		{"event": "dropped", "email": "d@example.com", "sg_event_id": "ev-4", "timestamp": 4}
	]`)

	result, err := handler.Handle(context.Background(), Request{Provider: "sendgrid", Body: body})
	if err != nil {
		t.Fatalf("handle events: %v", err)
	}
	if !result.Accepted || result.StatusCode != 200 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Metadata["events"] != 4 {
		t.Fatalf("expected 4 parsed events, got %v", result.Metadata["events"])
	}
	if result.Metadata["applied"] != 2 {
		t.Fatalf("expected 2 applied verdicts, got %v", result.Metadata["applied"])
	}
	// the dropped event carries no record id, so it is counted but skipped
	if result.Metadata["skipped"] != 1 {
		t.Fatalf("expected 1 skipped event, got %v", result.Metadata["skipped"])
	}

	bounce, ok := store.verdicts["rec-002"]
	if !ok || bounce.Valid {
		t.Fatalf("expected invalid verdict for rec-002, got %+v", bounce)
	}
	if bounce.Reason != "550 mailbox unavailable" {
		t.Fatalf("unexpected bounce reason: %q", bounce.Reason)
	}
	complaint, ok := store.verdicts["rec-003"]
	if !ok || complaint.Valid {
		t.Fatalf("expected invalid verdict for rec-003, got %+v", complaint)
	}
	if complaint.Reason != "recipient complained" {
		t.Fatalf("unexpected complaint reason: %q", complaint.Reason)
	}
	if _, ok := store.verdicts["rec-001"]; ok {
		t.Fatalf("delivered event must not touch validity")
	}
}

func TestRecordEventHandler_BadPayloadIsRejected(t *testing.T) {
	handler := NewRecordEventHandler(ParseSendgridEvents, &capturingVerdictWriter{})

	result, err := handler.Handle(context.Background(), Request{Provider: "sendgrid", Body: []byte("not json")})
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if result.Accepted || result.StatusCode != 400 {
		t.Fatalf("expected rejected result, got %+v", result)
	}
}

func TestRecordEventHandler_StoreFailureCountsAsSkipped(t *testing.T) {
	store := &capturingVerdictWriter{err: core.ErrRecordNotFound}
	handler := NewRecordEventHandler(ParseMailgunEvents, store)

	body := []byte(`{
		"event-data": {
			"id": "ev-9",
			"event": "failed",
			"severity": "permanent",
			"recipient": "gone@example.com",
			"timestamp": 1756300000,
			"user-variables": {"record_id": "rec-404"}
		}
	}`)
	result, err := handler.Handle(context.Background(), Request{Provider: "mailgun", Body: body})
	if err != nil {
		t.Fatalf("handle events: %v", err)
	}
	if result.Metadata["applied"] != 0 || result.Metadata["skipped"] != 1 {
		t.Fatalf("expected skip on store failure, got %+v", result.Metadata)
	}
}
