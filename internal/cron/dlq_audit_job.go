package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/metrics"
	"github.com/molimor/molimor-backend/pkg/outbox"
)

const (
	dlqAuditJobName    = "outbox-dlq-audit"
	dlqAuditSampleSize = 20
)

type dlqReader interface {
	SummarizeSince(ctx context.Context, since time.Time) ([]outbox.DLQSummary, error)
	RecentSince(ctx context.Context, since time.Time, limit int) ([]models.OutboxDLQ, error)
}

// dlqAuditJob warns about order events that were dead-lettered since the
// previous cycle, naming the affected orders so operators can resend them.
type dlqAuditJob struct {
	logg     *logger.Logger
	repo     dlqReader
	metrics  *metrics.CronJobMetrics
	lookback time.Duration
	now      func() time.Time
}

// NewDLQAuditJob reports dead-lettered events from the last lookback window.
// lookback should match the cron interval. m may be nil.
func NewDLQAuditJob(logg *logger.Logger, repo dlqReader, m *metrics.CronJobMetrics, lookback time.Duration) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if repo == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	if lookback <= 0 {
		lookback = defaultInterval
	}
	return &dlqAuditJob{logg: logg, repo: repo, metrics: m, lookback: lookback, now: time.Now}, nil
}

func (j *dlqAuditJob) Name() string { return dlqAuditJobName }

func (j *dlqAuditJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.lookback)
	summaries, err := j.repo.SummarizeSince(ctx, since)
	if err != nil {
		return fmt.Errorf("summarize dlq: %w", err)
	}
	j.metrics.ResetDLQ()
	for _, s := range summaries {
		j.metrics.SetDLQ(string(s.EventType), string(s.ErrorReason), s.Count)
	}
	if len(summaries) == 0 {
		j.logg.Info(j.logg.WithField(ctx, "since", since), "no dead-lettered events")
		return nil
	}

	recent, err := j.repo.RecentSince(ctx, since, dlqAuditSampleSize)
	if err != nil {
		return fmt.Errorf("list recent dlq entries: %w", err)
	}
	orderIDs := make([]string, 0, len(recent))
	for _, entry := range recent {
		orderIDs = append(orderIDs, entry.AggregateID.String())
	}

	for _, s := range summaries {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"since":          since,
			"event_type":     s.EventType,
			"error_reason":   s.ErrorReason,
			"count":          s.Count,
			"last_failed_at": s.LastFailedAt,
			"sample_orders":  orderIDs,
		}), "order events dead-lettered")
	}
	return nil
}
