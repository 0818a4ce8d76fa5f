package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics covers the cron-worker: job runs, pruned rows and the
// dead-letter backlog its audit job sees.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	rows     *prometheus.CounterVec
	dlq      *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "molimor_cron_job_duration_seconds",
			Help:    "Duration of housekeeping jobs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "molimor_cron_job_runs_total",
			Help: "Housekeeping job runs by result.",
		}, []string{"job", "result"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "molimor_cron_rows_deleted_total",
			Help: "Rows pruned by housekeeping jobs.",
		}, []string{"job"}),
		dlq: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "molimor_outbox_dlq_recent",
			Help: "Order events dead-lettered during the last audit window.",
		}, []string{"event_type", "reason"}),
	}
	reg.MustRegister(m.duration, m.runs, m.rows, m.dlq)
	return m
}

// ObserveRun records one job run; a non-nil err counts as a failure.
func (c *CronJobMetrics) ObserveRun(job string, took time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(took.Seconds())
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	c.runs.WithLabelValues(job, result).Inc()
}

// AddDeleted counts rows a job removed.
func (c *CronJobMetrics) AddDeleted(job string, rows int64) {
	if c == nil || c.rows == nil || rows <= 0 {
		return
	}
	c.rows.WithLabelValues(normalizeLabel(job)).Add(float64(rows))
}

// ResetDLQ clears the backlog gauge before an audit republishes it.
func (c *CronJobMetrics) ResetDLQ() {
	if c == nil || c.dlq == nil {
		return
	}
	c.dlq.Reset()
}

func (c *CronJobMetrics) SetDLQ(eventType, reason string, count int64) {
	if c == nil || c.dlq == nil {
		return
	}
	c.dlq.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Set(float64(count))
}
