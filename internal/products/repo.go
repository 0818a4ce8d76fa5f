package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/internal/repo"
	"github.com/molimor/molimor-backend/pkg/db/models"
)

// Repository reads catalog products.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByIDs loads the products that still exist among ids. Missing ids are
// silently absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var rows []models.Product
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Index keys products by id.
func Index(rows []models.Product) map[uuid.UUID]models.Product {
	out := make(map[uuid.UUID]models.Product, len(rows))
	for _, p := range rows {
		out[p.ID] = p
	}
	return out
}
