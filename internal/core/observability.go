package core

import (
	"context"
	"time"

	"stancore/pkg/domain"
)

// Logger captures structured log output from service operations.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts a span around each service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus is the outcome recorded for an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry records who changed what through the service.
type AuditEntry struct {
	Timestamp time.Time
	Operation string
	Entity    domain.EntityType
	Action    domain.ChangeAction
	EntityID  string
	Username  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
}

// AuditRecorder receives audit entries. Implementations must not block.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// auditTargets maps audited operations to the entity they create.
var auditTargets = map[string]struct {
	entity domain.EntityType
	action domain.ChangeAction
}{
	opCreateLabwareType:   {domain.EntityLabwareType, domain.ChangeCreate},
	opCreateBioState:      {domain.EntityBioState, domain.ChangeCreate},
	opCreateTissue:        {domain.EntityTissue, domain.ChangeCreate},
	opCreateOperationType: {domain.EntityOperationType, domain.ChangeCreate},
	opCreateWork:          {domain.EntityWork, domain.ChangeCreate},
	opUpdateWorkStatus:    {domain.EntityWork, domain.ChangeUpdate},
	opCreateSample:        {domain.EntitySample, domain.ChangeCreate},
	opCreateLabware:       {domain.EntityLabware, domain.ChangeCreate},
	opUpdateLabware:       {domain.EntityLabware, domain.ChangeUpdate},
	opPerformTransfer:     {domain.EntityOperation, domain.ChangeCreate},
}
