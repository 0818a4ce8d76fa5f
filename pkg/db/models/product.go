package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog row read during fulfillment. GST is kept as entered by
// the catalog admin, e.g. "18%".
type Product struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Title     string          `gorm:"column:title;not null"`
	SKU       string          `gorm:"column:sku"`
	HSNCode   string          `gorm:"column:hsn_code"`
	GST       string          `gorm:"column:gst"`
	Image     *string         `gorm:"column:image"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2)"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
