// Package context carries tracing values for monitored work: the task id, a
// correlation id shared by related work, the submitting operation and a start time.
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Values returned by the getters when the context carries none.
const (
	UnknownCorrelationID = "unknown-correlation"
	UnknownOperation     = "unknown-operation"
)

// ctxKey is the type of the context keys of this package. Distinct constants of
// a non-zero-size type never compare equal.
type ctxKey int

const (
	taskIDKey ctxKey = iota
	correlationIDKey
	operationKey
	startTimeKey
)

// WithTaskID adds a monitored task id to the context
func WithTaskID(parent context.Context, id uint64) context.Context {
	return context.WithValue(parent, taskIDKey, id)
}

// GetTaskID retrieves the task id from context. The second result is false when
// the context does not belong to monitored work.
func GetTaskID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(taskIDKey).(uint64)
	return id, ok
}

// WithCorrelationID adds a correlation ID to the context. An empty id is replaced
// by a generated one.
func WithCorrelationID(parent context.Context, correlationID string) context.Context {
	if correlationID == "" {
		correlationID = GenerateCorrelationID()
	}
	return context.WithValue(parent, correlationIDKey, correlationID)
}

// GetCorrelationID retrieves the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		return id
	}
	return UnknownCorrelationID
}

// WithOperation adds an operation name to the context
func WithOperation(parent context.Context, operation string) context.Context {
	return context.WithValue(parent, operationKey, operation)
}

// GetOperation retrieves the operation name from context
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		return op
	}
	return UnknownOperation
}

// WithStartTime adds the work start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetStartTime retrieves the start time from context, or the zero time.
func GetStartTime(ctx context.Context) time.Time {
	t, _ := ctx.Value(startTimeKey).(time.Time)
	return t
}

// GetDuration returns the time elapsed since the start time in context, or zero
// when no start time is set.
func GetDuration(ctx context.Context) time.Duration {
	startTime := GetStartTime(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}

// GenerateCorrelationID creates a new unique correlation ID
func GenerateCorrelationID() string {
	return "cor_" + uuid.New().String()
}

// EnrichContext tags parent as the context of monitored work id, keeping an
// existing correlation id.
func EnrichContext(parent context.Context, id uint64, operation string) context.Context {
	ctx := WithTaskID(parent, id)
	if GetCorrelationID(ctx) == UnknownCorrelationID {
		ctx = WithCorrelationID(ctx, "")
	}
	if operation != "" {
		ctx = WithOperation(ctx, operation)
	}
	return WithStartTime(ctx, time.Now())
}

// TracingFields returns common tracing fields for structured logging
func TracingFields(ctx context.Context) map[string]interface{} {
	fields := map[string]interface{}{
		"correlation_id": GetCorrelationID(ctx),
		"operation":      GetOperation(ctx),
		"duration_ms":    GetDuration(ctx).Milliseconds(),
	}
	if id, ok := GetTaskID(ctx); ok {
		fields["task_id"] = id
	}
	return fields
}
