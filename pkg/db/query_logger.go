package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/molimor/molimor-backend/pkg/logger"
)

// queryLogger sends gorm output through the service logger. Failed queries
// log at error, slow ones at warn. Missing rows and unique violations are
// left to the caller, which treats them as normal outcomes.
type queryLogger struct {
	logg  *logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, level: gormlogger.Warn}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	clone.level = level
	return &clone
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Info {
		q.logg.Debug(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Warn {
		q.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Error {
		q.logg.Error(ctx, "gorm", errors.New(fmt.Sprintf(msg, args...)))
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && q.level >= gormlogger.Error && !expectedQueryError(err):
		q.logg.Error(q.fields(ctx, elapsed, fc), "query failed", err)
	case q.slow > 0 && elapsed > q.slow && q.level >= gormlogger.Warn:
		q.logg.Warn(q.fields(ctx, elapsed, fc), "slow query")
	case q.level >= gormlogger.Info:
		q.logg.Debug(q.fields(ctx, elapsed, fc), "query")
	}
}

func (q *queryLogger) fields(ctx context.Context, elapsed time.Duration, fc func() (string, int64)) context.Context {
	sql, rows := fc()
	return q.logg.WithFields(ctx, map[string]any{
		"sql":        sql,
		"rows":       rows,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

func expectedQueryError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || IsUniqueViolation(err, "")
}
