package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderNotification is the admin "new order" marker. IsMark flips once an admin
// has acknowledged it.
type OrderNotification struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	IsMark    bool      `gorm:"column:is_mark;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Order *Order `gorm:"foreignKey:OrderID;references:ID"`
}

func (n *OrderNotification) BeforeCreate(_ *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
