package logger

import (
	"context"

	pcontext "github.com/poltergeist/taskmon/pkg/context"
)

// LoggerContext is a Logger whose *Context methods add the tracing values of
// monitored work (task id, correlation id, operation, elapsed time) to each entry.
type LoggerContext interface {
	Logger
	InfoContext(ctx context.Context, message string, fields ...Field)
	ErrorContext(ctx context.Context, message string, fields ...Field)
	WarnContext(ctx context.Context, message string, fields ...Field)
	DebugContext(ctx context.Context, message string, fields ...Field)
	SuccessContext(ctx context.Context, message string, fields ...Field)
}

var _ LoggerContext = (*TargetLogger)(nil)

// InfoContext logs an info message with context tracing
func (l *TargetLogger) InfoContext(ctx context.Context, message string, fields ...Field) {
	l.Info(message, withTracing(ctx, fields)...)
}

// ErrorContext logs an error message with context tracing
func (l *TargetLogger) ErrorContext(ctx context.Context, message string, fields ...Field) {
	l.Error(message, withTracing(ctx, fields)...)
}

// WarnContext logs a warning message with context tracing
func (l *TargetLogger) WarnContext(ctx context.Context, message string, fields ...Field) {
	l.Warn(message, withTracing(ctx, fields)...)
}

// DebugContext logs a debug message with context tracing
func (l *TargetLogger) DebugContext(ctx context.Context, message string, fields ...Field) {
	l.Debug(message, withTracing(ctx, fields)...)
}

// SuccessContext logs a success message with context tracing
func (l *TargetLogger) SuccessContext(ctx context.Context, message string, fields ...Field) {
	l.Success(message, withTracing(ctx, fields)...)
}

// withTracing prepends the tracing values found in ctx to fields. Values left at
// their pcontext defaults are omitted.
func withTracing(ctx context.Context, fields []Field) []Field {
	if ctx == nil {
		return fields
	}

	out := make([]Field, 0, len(fields)+4)
	if id, ok := pcontext.GetTaskID(ctx); ok {
		out = append(out, WithField("task_id", id))
	}
	if id := pcontext.GetCorrelationID(ctx); id != pcontext.UnknownCorrelationID {
		out = append(out, WithField("correlation_id", id))
	}
	if op := pcontext.GetOperation(ctx); op != pcontext.UnknownOperation {
		out = append(out, WithField("operation", op))
	}
	if d := pcontext.GetDuration(ctx); d > 0 {
		out = append(out, WithField("duration_ms", d.Milliseconds()))
	}
	return append(out, fields...)
}

// WithContext returns a Logger that adds the tracing values of ctx to every entry.
func WithContext(ctx context.Context, logger Logger) Logger {
	if ctx == nil {
		return logger
	}
	return &contextualLogger{ctx: ctx, logger: logger}
}

type contextualLogger struct {
	ctx    context.Context
	logger Logger
}

func (cl *contextualLogger) Info(message string, fields ...Field) {
	cl.logger.Info(message, withTracing(cl.ctx, fields)...)
}

func (cl *contextualLogger) Error(message string, fields ...Field) {
	cl.logger.Error(message, withTracing(cl.ctx, fields)...)
}

func (cl *contextualLogger) Warn(message string, fields ...Field) {
	cl.logger.Warn(message, withTracing(cl.ctx, fields)...)
}

func (cl *contextualLogger) Debug(message string, fields ...Field) {
	cl.logger.Debug(message, withTracing(cl.ctx, fields)...)
}

func (cl *contextualLogger) Success(message string, fields ...Field) {
	cl.logger.Success(message, withTracing(cl.ctx, fields)...)
}

func (cl *contextualLogger) WithTarget(target string) Logger {
	return &contextualLogger{ctx: cl.ctx, logger: cl.logger.WithTarget(target)}
}
