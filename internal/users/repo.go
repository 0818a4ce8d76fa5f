package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/internal/repo"
	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
)

// Repository exposes the user reads needed by ordering and fulfillment.
type Repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListAdminDeviceTokens returns the registered FCM tokens of every admin.
func (r *Repository) ListAdminDeviceTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	err := r.DB(ctx).
		Model(&models.User{}).
		Where("role = ?", enums.UserRoleAdmin).
		Where("fcm_token IS NOT NULL AND fcm_token <> ''").
		Order("created_at ASC").
		Pluck("fcm_token", &tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}
