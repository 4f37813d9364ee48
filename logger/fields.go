package logger

import (
	"context"

	"go.uber.org/zap"
)

// Structured field names. Use these instead of raw strings so log queries
// can rely on a single spelling per concept.
const (
	// Identity
	FieldJobID         = "job_id"
	FieldScheduleDefID = "schedule_def_id"
	FieldTenantID      = "tenant_id"
	FieldLeaseID       = "lease_id"
	FieldHolder        = "holder"
	FieldWorkerID      = "worker_id"

	// Pipeline
	FieldTrigger     = "trigger"
	FieldStatus      = "status"
	FieldReason      = "reason"
	FieldFingerprint = "fingerprint"
	FieldAttempt     = "attempt"
	FieldVerdict     = "verdict"
	FieldObjective   = "objective"
	FieldLocator     = "locator"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldBackoff    = "backoff"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount = "count"
	FieldRows  = "rows"

	FieldComponent = "component"
)

type contextKey string

const (
	jobIDKey     contextKey = "logger_job_id"
	scheduleKey  contextKey = "logger_schedule_def_id"
	componentKey contextKey = "logger_component"
)

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithScheduleDefID adds a schedule definition ID to the context for logging
func WithScheduleDefID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scheduleKey, id)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context as key-value pairs
// suitable for Infow/Errorw.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		fields = append(fields, FieldJobID, v)
	}
	if v, ok := ctx.Value(scheduleKey).(string); ok && v != "" {
		fields = append(fields, FieldScheduleDefID, v)
	}
	if v, ok := ctx.Value(componentKey).(string); ok && v != "" {
		fields = append(fields, FieldComponent, v)
	}

	return fields
}

// FromContext returns base enriched with the fields carried by ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	base = OrNop(base)
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named child of the global logger, e.g.
// ComponentLogger("pulse.guard"). Call it after Initialize.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
