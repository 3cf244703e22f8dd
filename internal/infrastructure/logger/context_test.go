package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestFromContext(t *testing.T) {
	l, _ := observed()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestWithSyncRun(t *testing.T) {
	base, logs := observed()
	ctx, l := WithSyncRun(context.Background(), base, "part", "log-1")

	assert.Equal(t, "part", GetEntityType(ctx))
	assert.Equal(t, "log-1", GetSyncLogID(ctx))
	assert.Empty(t, GetRequestID(ctx))

	l.Info("Sync started")
	FromContext(ctx).Info("from context")
	require.Equal(t, 2, logs.Len())
	for _, e := range logs.All() {
		assert.Equal(t, "part", e.ContextMap()["entity_type"])
		assert.Equal(t, "log-1", e.ContextMap()["sync_log_id"])
	}
}

func TestWithTraceContext(t *testing.T) {
	base, logs := observed()
	assert.Same(t, base, WithTraceContext(context.Background(), base))

	WithTraceContext(spanContext(t), base).Info("traced")
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
}

func TestL_UsesContextLoggerWithoutRepeatingFields(t *testing.T) {
	base, logs := observed()
	ctx, _ := WithSyncRun(spanContext(t), base, "stock", "log-2")

	L(ctx).With(zap.Int("batch", 3)).Info("Batch imported")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Len(t, entry.Context, 5)
	fields := entry.ContextMap()
	assert.Equal(t, "stock", fields["entity_type"])
	assert.Equal(t, int64(3), fields["batch"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
}

func TestWithLogger_AddsContextFields(t *testing.T) {
	other, _ := observed()
	base, logs := observed()
	ctx, _ := WithRequestID(context.Background(), other, "req-1")
	ctx, _ = WithSyncRun(ctx, other, "pricing", "log-3")

	WithLogger(ctx, base).Warn("Retrying fetch")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "pricing", fields["entity_type"])
	assert.Equal(t, "log-3", fields["sync_log_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestContextLogger_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		WithLogger(context.Background(), nil).Error("nothing")
		L(context.Background()).Zap().Debug("nothing")
	})
}
