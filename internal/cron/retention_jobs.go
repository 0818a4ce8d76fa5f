package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/metrics"
)

const (
	outboxRetentionJobName       = "outbox-retention"
	notificationCleanupJobName   = "notification-cleanup"
	defaultOutboxRetentionDays   = 30
	defaultNotificationRetention = 90
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type notificationPruner interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// RetentionJobParams are shared by the pruning jobs.
type RetentionJobParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Metrics *metrics.CronJobMetrics
	// RetentionDays of zero falls back to the job default.
	RetentionDays int
}

// NewOutboxRetentionJob prunes outbox rows that were published more than
// RetentionDays ago.
func NewOutboxRetentionJob(params RetentionJobParams, repo outboxPruner) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newRetentionJob(outboxRetentionJobName, params, defaultOutboxRetentionDays, repo.DeletePublishedBefore)
}

// NewNotificationCleanupJob prunes admin notifications nobody dismissed
// within RetentionDays.
func NewNotificationCleanupJob(params RetentionJobParams, repo notificationPruner) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newRetentionJob(notificationCleanupJobName, params, defaultNotificationRetention, repo.DeleteOlderThan)
}

type pruneFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	prune     pruneFunc
	metrics   *metrics.CronJobMetrics
	retention int
	now       func() time.Time
}

func newRetentionJob(name string, params RetentionJobParams, fallbackDays int, prune pruneFunc) (*retentionJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = fallbackDays
	}
	return &retentionJob{
		name:      name,
		logg:      params.Logger,
		db:        params.DB,
		prune:     prune,
		metrics:   params.Metrics,
		retention: retention,
		now:       time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.retention)
}

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.cutoff()
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.prune(ctx, tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.metrics.AddDeleted(j.name, deleted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}), "retention cleanup complete")
	return nil
}
