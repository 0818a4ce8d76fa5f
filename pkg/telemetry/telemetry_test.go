package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/molimor/molimor-backend/pkg/config"
)

func TestDisabledTracerProviderIsNoop(t *testing.T) {
	shutdown, err := InitTracerProvider(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestAttributesCarryTraceContext(t *testing.T) {
	_, err := InitTracerProvider(context.Background(), config.TelemetryConfig{}, "test")
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := Tracer().Start(context.Background(), "publish")
	attrs := InjectAttributes(ctx, map[string]string{"event_type": "order_placed"})
	span.End()

	assert.Equal(t, "order_placed", attrs["event_type"])
	assert.NotEmpty(t, attrs["traceparent"])

	extracted := ExtractAttributes(context.Background(), attrs)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())

	assert.Equal(t, context.Background(), ExtractAttributes(context.Background(), nil))
}
