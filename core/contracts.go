package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// ListenerStore is the durable mirror of active listener registrations.
// The in-memory registry is authoritative for reads; the store exists so
// registrations survive restarts.
type ListenerStore interface {
	Upsert(ctx context.Context, registration ListenerRegistration) (ListenerRegistration, error)
	Delete(ctx context.Context, listenerID string) error
	List(ctx context.Context) ([]ListenerRegistration, error)
}

// DeliveryTransport hands a classified event to one matched listener. The
// transport is external (the platform's flow runner); failures are isolated
// per listener and never retried by the bridge.
type DeliveryTransport interface {
	Deliver(ctx context.Context, listenerID string, event ClassifiedEvent) error
}

// SecretSource resolves the shared signing secret for CRM-issued tokens.
// A source that cannot produce a secret signals operational misconfiguration.
type SecretSource interface {
	SharedSecret(ctx context.Context) (string, error)
}

// IdempotencyClaimStore provides claim/complete/fail semantics over webhook
// delivery ids so transient handler failures remain retryable while completed
// deliveries are deduped.
type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type WebhookHandler interface {
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
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
