package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/internal/repo"
	"github.com/molimor/molimor-backend/pkg/db/models"
)

// Repository defines persistence for admin order notifications.
type Repository interface {
	Create(ctx context.Context, notification *models.OrderNotification) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderNotification, error)
	ListUnacknowledged(ctx context.Context) ([]models.OrderNotification, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a GORM-backed notifications repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) Create(ctx context.Context, notification *models.OrderNotification) error {
	return r.DB(ctx).Omit("Order").Create(notification).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderNotification, error) {
	var n models.OrderNotification
	if err := r.DB(ctx).Where("order_id = ?", orderID).First(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// ListUnacknowledged returns pending notifications newest first with their orders loaded.
func (r *repository) ListUnacknowledged(ctx context.Context) ([]models.OrderNotification, error) {
	var rows []models.OrderNotification
	err := r.DB(ctx).
		Preload("Order").
		Where("is_mark = ?", false).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.DB(ctx).Where("id IN ?", ids).Delete(&models.OrderNotification{})
	return res.RowsAffected, res.Error
}

// DeleteOlderThan drops pending notifications created before cutoff. tx may be
// nil to run outside a transaction.
func (r *repository) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := r.On(ctx, tx).Where("created_at < ?", cutoff).Delete(&models.OrderNotification{})
	return res.RowsAffected, res.Error
}
