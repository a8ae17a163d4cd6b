package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Provider is one concrete outbound email transport. Implementations
// differ only in how Send and TestConnection work; callers never branch
// on provider identity beyond the name used to resolve it.
type Provider interface {
	Name() string
	ValidateConfig() error
	TestConnection(ctx context.Context) error
	Send(ctx context.Context, msg Message, routing RoutingParams) error
}

type Registry interface {
	Register(provider Provider) error
	Resolve(name string) (Provider, error)
	ResolveName(name string) (string, error)
	IsAvailable(name string) bool
	ValidateConfig(name string) error
	Descriptors() []ProviderDescriptor
	DefaultName() string
}

// DeliveryRecordStore persists delivery records. Every status transition
// is a single conditional write keyed on the expected prior status, so
// two coordinators observing the same pending record cannot both queue it.
type DeliveryRecordStore interface {
	Get(ctx context.Context, id string) (DeliveryRecord, error)
	Create(ctx context.Context, record DeliveryRecord) (DeliveryRecord, error)

	// MarkQueued performs the atomic enqueue guard: pending/failed AND
	// valid email, in one conditional update. On a failed guard it
	// classifies the record and returns ErrRecordNotFound,
	// ErrInvalidEmail or ErrIneligibleState.
	MarkQueued(ctx context.Context, id string, provider string) (DeliveryRecord, error)
	MarkSending(ctx context.Context, id string) (DeliveryRecord, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	ResetDelivery(ctx context.Context, id string) error

	// ListEligible returns records whose status is in the given subset
	// (pending/failed when empty) and whose email is known-valid.
	ListEligible(ctx context.Context, statuses []DeliveryStatus) ([]DeliveryRecord, error)

	// ListUnverified returns up to limit records with validity != valid
	// and id strictly greater than afterID, ordered by id ascending. An
	// empty afterID starts from the beginning. The pipeline threads the
	// cursor through its continuation messages so a run passes over each
	// record at most once even when verdicts come back invalid.
	ListUnverified(ctx context.Context, afterID string, limit int) ([]DeliveryRecord, error)
	CountUnverified(ctx context.Context) (int, error)
	SaveVerdict(ctx context.Context, id string, verdict Verdict, at time.Time) error
}

// ProxyStore reads proxy routing rows. Writes exist for fixtures only;
// proxy CRUD belongs to the surrounding panel.
type ProxyStore interface {
	Get(ctx context.Context, id string) (Proxy, error)
	Create(ctx context.Context, proxy Proxy) (Proxy, error)
}

// AddressVerifier produces a validity verdict for one address. A non-nil
// error means the check itself failed (transient lookup trouble) and the
// record must be left unchanged for the next run.
type AddressVerifier interface {
	Verify(ctx context.Context, email string) (Verdict, error)
}

// MessageComposer supplies the rendered message for a record. Rendering
// is external; the default composer passes through static content.
type MessageComposer interface {
	Compose(ctx context.Context, record DeliveryRecord) (Message, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
