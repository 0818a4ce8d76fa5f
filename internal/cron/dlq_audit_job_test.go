package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/metrics"
	"github.com/molimor/molimor-backend/pkg/outbox"
)

type fakeDLQ struct {
	summaries   []outbox.DLQSummary
	recent      []models.OutboxDLQ
	err         error
	since       time.Time
	recentCalls int
}

func (f *fakeDLQ) SummarizeSince(_ context.Context, since time.Time) ([]outbox.DLQSummary, error) {
	f.since = since
	return f.summaries, f.err
}

func (f *fakeDLQ) RecentSince(context.Context, time.Time, int) ([]models.OutboxDLQ, error) {
	f.recentCalls++
	return f.recent, nil
}

func newAuditJob(t *testing.T, repo *fakeDLQ, now time.Time) *dlqAuditJob {
	t.Helper()
	job, err := NewDLQAuditJob(logger.Nop(), repo, nil, time.Hour)
	require.NoError(t, err)
	aj := job.(*dlqAuditJob)
	aj.now = func() time.Time { return now }
	return aj
}

func TestDLQAuditJobLooksBackOneWindow(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	repo := &fakeDLQ{}
	job := newAuditJob(t, repo, now)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-time.Hour), repo.since)
	assert.Zero(t, repo.recentCalls, "no sampling when nothing failed")
	assert.Equal(t, "outbox-dlq-audit", job.Name())
}

func TestDLQAuditJobSamplesOrdersWhenEntriesExist(t *testing.T) {
	repo := &fakeDLQ{
		summaries: []outbox.DLQSummary{{EventType: enums.EventOrderPlaced, ErrorReason: enums.OutboxDLQReasonMaxAttempts, Count: 3}},
		recent:    []models.OutboxDLQ{{AggregateID: uuid.New()}},
	}
	job := newAuditJob(t, repo, time.Now())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, repo.recentCalls)
}

func TestDLQAuditJobPublishesBacklogGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	repo := &fakeDLQ{summaries: []outbox.DLQSummary{
		{EventType: enums.EventOrderPlaced, ErrorReason: enums.OutboxDLQReasonMaxAttempts, Count: 2},
		{EventType: enums.EventInvoiceResendAsked, ErrorReason: enums.OutboxDLQReasonNonRetryable, Count: 1},
	}}
	job, err := NewDLQAuditJob(logger.Nop(), repo, metrics.NewCronJobMetrics(reg), time.Hour)
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	count, err := testutil.GatherAndCount(reg, "molimor_outbox_dlq_recent")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	repo.summaries = nil
	require.NoError(t, job.Run(context.Background()))
	count, err = testutil.GatherAndCount(reg, "molimor_outbox_dlq_recent")
	require.NoError(t, err)
	assert.Zero(t, count, "gauge cleared once the window is clean")
}

func TestDLQAuditJobReturnsQueryError(t *testing.T) {
	repo := &fakeDLQ{err: errors.New("relation does not exist")}
	job := newAuditJob(t, repo, time.Now())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize dlq")
}

func TestNewDLQAuditJobValidates(t *testing.T) {
	_, err := NewDLQAuditJob(nil, &fakeDLQ{}, nil, time.Hour)
	assert.Error(t, err)
	_, err = NewDLQAuditJob(logger.Nop(), nil, nil, time.Hour)
	assert.Error(t, err)

	job, err := NewDLQAuditJob(logger.Nop(), &fakeDLQ{}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultInterval, job.(*dlqAuditJob).lookback)
}
