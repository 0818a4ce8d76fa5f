package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/molimor/molimor-backend/pkg/config"
)

// InitMeterProvider bridges OTel instruments (runtime and otelhttp metrics)
// into the default Prometheus registry served on /metrics.
func InitMeterProvider(cfg config.TelemetryConfig, serviceVersion string) (ShutdownFunc, error) {
	exporter, err := otelprom.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(newResource(cfg.ServiceName, serviceVersion)),
	)
	otel.SetMeterProvider(mp)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(15 * time.Second)); err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}
	return mp.Shutdown, nil
}
