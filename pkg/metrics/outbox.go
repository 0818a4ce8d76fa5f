package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks the outbox publisher loop.
type OutboxMetrics struct {
	published  *prometheus.CounterVec
	failed     *prometheus.CounterVec
	deadLetter *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "molimor_outbox_published_total",
		Help: "Outbox events published to Pub/Sub.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "molimor_outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed and will be retried.",
	}, []string{"event_type"})
	deadLetter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "molimor_outbox_dead_lettered_total",
		Help: "Outbox events moved to the DLQ.",
	}, []string{"event_type", "reason"})
	reg.MustRegister(published, failed, deadLetter)
	return &OutboxMetrics{published: published, failed: failed, deadLetter: deadLetter}
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncDeadLettered(eventType, reason string) {
	if m == nil || m.deadLetter == nil {
		return
	}
	m.deadLetter.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}
