package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey     contextKey = "logger"
	requestIDKey  contextKey = "request_id"
	entityTypeKey contextKey = "entity_type"
	syncLogIDKey  contextKey = "sync_log_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger attached to ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID adds the request ID to ctx and to the returned logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// WithSyncRun tags ctx and the returned logger with the run being executed.
func WithSyncRun(ctx context.Context, logger *zap.Logger, entityType, syncLogID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, entityTypeKey, entityType)
	ctx = context.WithValue(ctx, syncLogIDKey, syncLogID)
	enriched := logger.With(
		zap.String("entity_type", entityType),
		zap.String("sync_log_id", syncLogID),
	)
	return WithContext(ctx, enriched), enriched
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// GetEntityType returns the entity type of the sync run in ctx
func GetEntityType(ctx context.Context) string {
	v, _ := ctx.Value(entityTypeKey).(string)
	return v
}

// GetSyncLogID returns the sync log ID of the run in ctx
func GetSyncLogID(ctx context.Context) string {
	v, _ := ctx.Value(syncLogIDKey).(string)
	return v
}

// WithTraceContext adds trace_id and span_id from the span in ctx.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// ContextLogger logs with the trace and run fields found in its context.
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
	// loggers attached to ctx already carry the request and run fields
	fromContext bool
}

// L returns a ContextLogger over the logger attached to ctx.
//
//	logger.L(ctx).Info("Batch imported", zap.Int("batch", n))
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx), fromContext: true}
}

// WithLogger returns a ContextLogger over logger instead of the one in ctx.
// Run fields already on logger are not repeated.
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: logger}
}

func (cl *ContextLogger) enriched() *zap.Logger {
	l := cl.logger
	if l == nil {
		l = zap.NewNop()
	}
	l = WithTraceContext(cl.ctx, l)
	if cl.fromContext {
		return l
	}
	if id := GetRequestID(cl.ctx); id != "" {
		l = l.With(zap.String("request_id", id))
	}
	if et := GetEntityType(cl.ctx); et != "" {
		l = l.With(zap.String("entity_type", et), zap.String("sync_log_id", GetSyncLogID(cl.ctx)))
	}
	return l
}

// With creates a child ContextLogger with additional fields.
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.logger.With(fields...), fromContext: cl.fromContext}
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.enriched().Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field)  { cl.enriched().Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field)  { cl.enriched().Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.enriched().Error(msg, fields...) }

// Zap returns the enriched logger.
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.enriched()
}
