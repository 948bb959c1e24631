// AngelaMos | 2026
// telemetry_test.go

package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/whisperme/whisper-api/internal/config"
)

func recordingTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return recorder, provider
}

func TestSessionSpanOutcome(t *testing.T) {
	recorder, provider := recordingTracer(t)
	tracer := provider.Tracer("call")

	ctx, span := StartSessionSpan(context.Background(), tracer, "call.Accept", "s-1")
	RecordOutcome(ctx, errors.New("accept call: conflict"), true)
	span.End()

	ctx, span = StartSessionSpan(context.Background(), tracer, "call.End", "s-1")
	RecordOutcome(ctx, errors.New("end call: store write failed"), false)
	span.End()

	ctx, span = StartSessionSpan(context.Background(), tracer, "call.Initiate", "",
		AttrUserID.String("u-1"))
	RecordOutcome(ctx, nil, false)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 3)

	rejected := ended[0]
	assert.Contains(t, rejected.Attributes(), AttrSessionID.String("s-1"))
	assert.Equal(t, codes.Unset, rejected.Status().Code)
	require.Len(t, rejected.Events(), 1)
	assert.Equal(t, "rejected", rejected.Events()[0].Name)

	failed := ended[1]
	assert.Equal(t, codes.Error, failed.Status().Code)

	created := ended[2]
	assert.Equal(t, []attribute.KeyValue{AttrUserID.String("u-1")}, created.Attributes())
	assert.Equal(t, codes.Unset, created.Status().Code)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, Sampler(0.5).Description(), "TraceIDRatioBased{0.5}")
	assert.Contains(t, Sampler(0).Description(), "TraceIDRatioBased{0.1}")
	assert.Contains(t, Sampler(3).Description(), "TraceIDRatioBased{0.1}")
}

func TestDisabledTelemetry(t *testing.T) {
	tel, err := NewTelemetry(context.Background(), config.OtelConfig{Enabled: false}, config.AppConfig{})

	require.NoError(t, err)
	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.Empty(t, TraceIDFromContext(context.Background()))
}
