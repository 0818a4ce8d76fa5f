package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectAttributes writes the trace context of ctx into Pub/Sub message attributes.
func InjectAttributes(ctx context.Context, attrs map[string]string) map[string]string {
	if attrs == nil {
		attrs = map[string]string{}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(attrs))
	return attrs
}

// ExtractAttributes continues the trace carried by Pub/Sub message attributes.
func ExtractAttributes(ctx context.Context, attrs map[string]string) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(attrs))
}
