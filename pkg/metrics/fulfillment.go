package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// FulfillmentMetrics records per-step outcomes of the post-order pipeline.
type FulfillmentMetrics struct {
	stepDuration *prometheus.HistogramVec
	stepResult   *prometheus.CounterVec
	inFlight     prometheus.Gauge
	panics       prometheus.Counter
}

// NewFulfillmentMetrics registers the fulfillment metrics on the provided registerer.
// A nil registerer yields a no-op collector.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	stepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "molimor_fulfillment_step_duration_seconds",
		Help:    "Duration of post-order fulfillment steps in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})
	stepResult := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "molimor_fulfillment_step_total",
		Help: "Fulfillment step executions by result.",
	}, []string{"step", "result"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "molimor_fulfillment_in_flight",
		Help: "Fulfillment pipelines currently running.",
	})
	panics := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "molimor_fulfillment_panics_total",
		Help: "Fulfillment pipelines that panicked and were recovered.",
	})
	reg.MustRegister(stepDuration, stepResult, inFlight, panics)
	return &FulfillmentMetrics{
		stepDuration: stepDuration,
		stepResult:   stepResult,
		inFlight:     inFlight,
		panics:       panics,
	}
}

// ObserveStep records the duration and result for the named step.
func (m *FulfillmentMetrics) ObserveStep(step, result string, duration time.Duration) {
	if m == nil || m.stepDuration == nil {
		return
	}
	step = normalizeLabel(step)
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
	m.stepResult.WithLabelValues(step, normalizeLabel(result)).Inc()
}

func (m *FulfillmentMetrics) Started() {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *FulfillmentMetrics) Finished() {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *FulfillmentMetrics) IncPanic() {
	if m == nil || m.panics == nil {
		return
	}
	m.panics.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
