package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/internal/repo"
	"github.com/molimor/molimor-backend/pkg/db/models"
)

// Repository manages persisted cart rows.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// RemoveItems deletes the user's cart rows for the given products and returns
// how many rows went away. Products not in the cart are ignored, so the call
// is safe to repeat.
func (r *Repository) RemoveItems(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	res := r.DB(ctx).
		Where("user_id = ? AND product_id IN ?", userID, productIDs).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
