package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/molimor/molimor-backend/pkg/enums"
)

// User is the account record. Only the fields order fulfillment reads are mapped.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	FName     string         `gorm:"column:fname"`
	LName     string         `gorm:"column:lname"`
	Email     string         `gorm:"column:email;not null"`
	Mobile    *string        `gorm:"column:mobile"`
	Role      enums.UserRole `gorm:"column:role;not null;default:'user'"`
	FCMToken  *string        `gorm:"column:fcm_token"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
