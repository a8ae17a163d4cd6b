package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrIneligibleState       = errors.New("core: record is not eligible for this transition")
	ErrInvalidEmail          = errors.New("core: record email is not known to be valid")
	ErrUnknownProvider       = errors.New("core: provider is not registered")
	ErrMisconfiguredProvider = errors.New("core: provider configuration is invalid")
	ErrProxyUnavailable      = errors.New("core: requested proxy cannot be resolved")
	ErrTransportFailure      = errors.New("core: provider transport failed")
	ErrVerificationFailed    = errors.New("core: address verification failed")
	ErrRecordNotFound        = errors.New("core: delivery record not found")
)

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusQueued  DeliveryStatus = "queued"
	DeliveryStatusSending DeliveryStatus = "sending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

type EmailValidity string

const (
	EmailValidityUnknown EmailValidity = "unknown"
	EmailValidityValid   EmailValidity = "valid"
	EmailValidityInvalid EmailValidity = "invalid"
)

// DeliveryRecord is the per-contact delivery state. Delivery fields
// (Status, Provider, SentAt, LastError) are owned by the dispatch path;
// validity fields (Validity, InvalidityReason, LastValidatedAt) are owned
// by the validity pipeline. The two paths never touch each other's fields.
type DeliveryRecord struct {
	ID               string
	Email            string
	Validity         EmailValidity
	InvalidityReason string
	LastValidatedAt  *time.Time
	Status           DeliveryStatus
	Provider         string
	ProxyID          string
	SentAt           *time.Time
	LastError        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Eligible reports whether the record may be enqueued for sending.
func (r *DeliveryRecord) Eligible() bool {
	if r == nil {
		return false
	}
	return deliveryTransitionAllowed(r.Status, DeliveryStatusQueued) &&
		r.Validity == EmailValidityValid
}

// RequestQueue moves the record into the queued state. It is the single
// enqueue guard: the status must be pending or failed and the address must
// be known-valid. The record is left unchanged when a guard fails.
func (r *DeliveryRecord) RequestQueue(provider string, now time.Time) error {
	if r == nil {
		return ErrIneligibleState
	}
	if !deliveryTransitionAllowed(r.Status, DeliveryStatusQueued) {
		return fmt.Errorf("%w: %s -> %s", ErrIneligibleState, r.Status, DeliveryStatusQueued)
	}
	if r.Validity != EmailValidityValid {
		return fmt.Errorf("%w: validity is %q", ErrInvalidEmail, r.Validity)
	}
	r.Status = DeliveryStatusQueued
	r.Provider = strings.TrimSpace(provider)
	r.UpdatedAt = now
	return nil
}

// BeginSend moves a queued record into sending.
func (r *DeliveryRecord) BeginSend(now time.Time) error {
	if r == nil {
		return ErrIneligibleState
	}
	if !deliveryTransitionAllowed(r.Status, DeliveryStatusSending) {
		return fmt.Errorf("%w: %s -> %s", ErrIneligibleState, r.Status, DeliveryStatusSending)
	}
	r.Status = DeliveryStatusSending
	r.UpdatedAt = now
	return nil
}

// CompleteSend finishes an in-flight send. Success stamps SentAt; failure
// records nothing beyond the failed status, retries are the queue's call.
func (r *DeliveryRecord) CompleteSend(success bool, now time.Time) error {
	if r == nil {
		return ErrIneligibleState
	}
	next := DeliveryStatusFailed
	if success {
		next = DeliveryStatusSent
	}
	if !deliveryTransitionAllowed(r.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIneligibleState, r.Status, next)
	}
	r.Status = next
	if success {
		stamp := now
		r.SentAt = &stamp
		r.LastError = ""
	}
	r.UpdatedAt = now
	return nil
}

// Reset returns the record to pending and clears the sent stamp. Validity
// fields are untouched; resetting delivery never forgets a verification.
func (r *DeliveryRecord) Reset(now time.Time) error {
	if r == nil {
		return ErrIneligibleState
	}
	switch r.Status {
	case DeliveryStatusPending, DeliveryStatusSent, DeliveryStatusFailed:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrIneligibleState, r.Status, DeliveryStatusPending)
	}
	r.Status = DeliveryStatusPending
	r.SentAt = nil
	r.LastError = ""
	r.UpdatedAt = now
	return nil
}

func deliveryTransitionAllowed(current, next DeliveryStatus) bool {
	allowed := map[DeliveryStatus]map[DeliveryStatus]struct{}{
		DeliveryStatusPending: {
			DeliveryStatusQueued: {},
		},
		DeliveryStatusQueued: {
			DeliveryStatusSending: {},
		},
		DeliveryStatusSending: {
			DeliveryStatusSent:   {},
			DeliveryStatusFailed: {},
		},
		DeliveryStatusFailed: {
			DeliveryStatusQueued: {},
		},
		DeliveryStatusSent: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// Verdict is the outcome of one address verification.
type Verdict struct {
	Valid  bool
	Reason string
}

// ApplyVerdict records a verification outcome on the validity fields only.
func (r *DeliveryRecord) ApplyVerdict(verdict Verdict, now time.Time) {
	if r == nil {
		return
	}
	if verdict.Valid {
		r.Validity = EmailValidityValid
		r.InvalidityReason = ""
	} else {
		r.Validity = EmailValidityInvalid
		r.InvalidityReason = strings.TrimSpace(verdict.Reason)
	}
	stamp := now
	r.LastValidatedAt = &stamp
	r.UpdatedAt = now
}

// Proxy holds routing parameters for outbound provider connections.
// Proxy management is owned elsewhere; this subsystem only resolves.
type Proxy struct {
	ID        string
	Name      string
	Host      string
	Port      int
	Username  string
	Password  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoutingParams is what a provider transport needs to open its outbound
// connection. Direct means no intermediary.
type RoutingParams struct {
	Direct   bool
	Host     string
	Port     int
	Username string
	Password string
}

// DirectRouting is the zero-proxy routing used when no proxy is selected.
func DirectRouting() RoutingParams {
	return RoutingParams{Direct: true}
}

// Message is a fully rendered email: the worker receives final subject and
// body, template rendering happens upstream.
type Message struct {
	To      string
	Subject string
	Body    string
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("core: message recipient is required")
	}
	if strings.TrimSpace(m.Subject) == "" && strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("core: message subject or body is required")
	}
	return nil
}

// ProviderDescriptor is the transient status row reported per provider.
type ProviderDescriptor struct {
	Name      string
	Available bool
	LastError string
}
