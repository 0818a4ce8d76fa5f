package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/enums"
)

// OrderItem is a line item snapshotted at checkout. Price is what the buyer saw,
// never re-derived from the catalog.
type OrderItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// LineAmount returns price × quantity.
func (i OrderItem) LineAmount() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderItems is stored as a JSON document on the order row.
type OrderItems []OrderItem

// ProductIDs returns the distinct product references in order of first appearance.
func (items OrderItems) ProductIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Total sums price × quantity over every item.
func (items OrderItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineAmount())
	}
	return total
}

// Order is the authoritative purchase record.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     int64             `gorm:"column:order_number;not null;uniqueIndex"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	FName           string            `gorm:"column:fname;not null"`
	LName           string            `gorm:"column:lname;not null"`
	Items           OrderItems        `gorm:"column:items;type:jsonb;serializer:json;not null"`
	CouponID        *uuid.UUID        `gorm:"column:coupon_id;type:uuid"`
	PaymentMethod   string            `gorm:"column:payment_method;not null"`
	StreetAddress   string            `gorm:"column:street_address;not null"`
	Country         string            `gorm:"column:country;not null"`
	State           string            `gorm:"column:state;not null"`
	City            string            `gorm:"column:city;not null"`
	Pincode         string            `gorm:"column:pincode;not null"`
	ShippingAddress string            `gorm:"column:shipping_address"`
	ShippingCountry string            `gorm:"column:shipping_country"`
	ShippingState   string            `gorm:"column:shipping_state"`
	ShippingCity    string            `gorm:"column:shipping_city"`
	ShippingPincode string            `gorm:"column:shipping_pincode"`
	ShippingCharge  decimal.Decimal   `gorm:"column:shipping_charge;type:numeric(12,2);not null"`
	Mobile          string            `gorm:"column:mobile;not null"`
	Email           string            `gorm:"column:email;not null"`
	TotalAmount     decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	OrderNote       string            `gorm:"column:order_note;not null;default:''"`
	Status          enums.OrderStatus `gorm:"column:status;not null;default:'processing'"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderID renders the human-facing order number.
func (o Order) OrderID() string {
	return strconv.FormatInt(o.OrderNumber, 10)
}

func (o *Order) BeforeCreate(_ *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = enums.OrderStatusProcessing
	}
	return nil
}
