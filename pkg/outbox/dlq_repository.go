package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
)

// DLQRepository stores order events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx runs in the publisher's batch transaction, next to MarkTerminalTx.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncate(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// DLQSummary counts dead-lettered events per type and reason.
type DLQSummary struct {
	EventType    enums.OutboxEventType
	ErrorReason  enums.OutboxDLQErrorReason
	Count        int64
	LastFailedAt time.Time
}

// SummarizeSince groups entries that failed at or after since.
func (r *DLQRepository) SummarizeSince(ctx context.Context, since time.Time) ([]DLQSummary, error) {
	var rows []struct {
		EventType    enums.OutboxEventType
		ErrorReason  enums.OutboxDLQErrorReason
		Count        int64
		LastFailedAt string
	}
	err := r.db.WithContext(ctx).
		Model(&models.OutboxDLQ{}).
		Select("event_type, error_reason, COUNT(*) AS count, MAX(failed_at) AS last_failed_at").
		Where("failed_at >= ?", since).
		Group("event_type, error_reason").
		Order("event_type, error_reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]DLQSummary, 0, len(rows))
	for _, row := range rows {
		s := DLQSummary{EventType: row.EventType, ErrorReason: row.ErrorReason, Count: row.Count}
		s.LastFailedAt, _ = parseAggregateTime(row.LastFailedAt)
		out = append(out, s)
	}
	return out, nil
}

// RecentSince returns the newest entries failed at or after since.
func (r *DLQRepository) RecentSince(ctx context.Context, since time.Time, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OutboxDLQ
	err := r.db.WithContext(ctx).
		Where("failed_at >= ?", since).
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MAX() over a timestamp comes back as text on SQLite and as a timestamp
// string through Scan on Postgres.
func parseAggregateTime(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999"} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
