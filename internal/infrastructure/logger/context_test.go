package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func contextWithSpan() context.Context {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x0a, 0x0b},
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func fieldMap(entry observer.LoggedEntry) map[string]any {
	return entry.ContextMap()
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestWithRequestAndTerminalID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, l := WithRequestID(context.Background(), zap.New(core), "req-1")
	ctx, l = WithTerminalID(ctx, l, "cassa-2")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "cassa-2", GetTerminalID(ctx))
	assert.Same(t, l, FromContext(ctx))

	L(ctx).Info("payment committed")
	entries := recorded.All()
	assert.Len(t, entries, 1)
	fields := fieldMap(entries[0])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "cassa-2", fields["terminal_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestGetIDs_Empty(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Empty(t, GetTerminalID(context.Background()))
}

func TestWithTraceContext(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithTraceContext(context.Background(), base))

	core, recorded := observer.New(zapcore.InfoLevel)
	WithTraceContext(contextWithSpan(), zap.New(core)).Info("traced")

	fields := fieldMap(recorded.All()[0])
	assert.Equal(t, "01020300000000000000000000000000", fields["trace_id"])
	assert.Equal(t, "0a0b000000000000", fields["span_id"])
}

func TestContextLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := WithContext(contextWithSpan(), zap.New(core))

	cl := L(ctx).With(zap.String("order_id", "o-1"))
	cl.Debug("d")
	cl.Info("i")
	cl.Warn("w")
	cl.Error("e")

	entries := recorded.All()
	assert.Len(t, entries, 4)
	for _, e := range entries {
		fields := fieldMap(e)
		assert.Equal(t, "o-1", fields["order_id"])
		assert.Contains(t, fields, "trace_id")
	}
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := WithLogger(context.Background(), nil)
	assert.NotPanics(t, func() {
		cl.Info("nothing")
		cl.With(zap.Int("n", 1)).Warn("nothing")
	})
	assert.NotNil(t, cl.Zap())
}
