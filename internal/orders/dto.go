package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/molimor/molimor-backend/internal/users"
	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/pagination"
)

// CartItemInput is one submitted line item.
type CartItemInput struct {
	ProductID uuid.UUID       `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	Price     decimal.Decimal `json:"price" validate:"decimal_gte0"`
}

// PlaceOrderInput is the checkout request body.
type PlaceOrderInput struct {
	FName           string          `json:"fname" validate:"required"`
	LName           string          `json:"lname" validate:"required"`
	CartItems       []CartItemInput `json:"cartItems" validate:"required,min=1,dive"`
	CouponID        *uuid.UUID      `json:"couponId,omitempty"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required"`
	StreetAddress   string          `json:"streetAddress" validate:"required"`
	Country         string          `json:"country" validate:"required"`
	State           string          `json:"state" validate:"required"`
	City            string          `json:"city" validate:"required"`
	Pincode         string          `json:"pincode" validate:"required"`
	ShippingAddress string          `json:"shippingAddress,omitempty"`
	ShippingCountry string          `json:"shippingCountry,omitempty"`
	ShippingState   string          `json:"shippingState,omitempty"`
	ShippingCity    string          `json:"shippingCity,omitempty"`
	ShippingPincode string          `json:"shippingPincode,omitempty"`
	ShippingCharge  decimal.Decimal `json:"shippingCharge" validate:"decimal_gte0"`
	Mobile          string          `json:"mobile" validate:"required"`
	Email           string          `json:"email" validate:"required,email"`
	OrderNote       string          `json:"orderNote,omitempty"`
}

// OrderItemDTO mirrors a stored line item.
type OrderItemDTO struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderDTO is the public order shape.
type OrderDTO struct {
	ID              uuid.UUID         `json:"id"`
	OrderID         string            `json:"orderId"`
	UserID          uuid.UUID         `json:"userId"`
	FName           string            `json:"fname"`
	LName           string            `json:"lname"`
	Items           []OrderItemDTO    `json:"items"`
	CouponID        *uuid.UUID        `json:"couponId,omitempty"`
	PaymentMethod   string            `json:"paymentMethod"`
	StreetAddress   string            `json:"streetAddress"`
	Country         string            `json:"country"`
	State           string            `json:"state"`
	City            string            `json:"city"`
	Pincode         string            `json:"pincode"`
	ShippingAddress string            `json:"shippingAddress,omitempty"`
	ShippingCountry string            `json:"shippingCountry,omitempty"`
	ShippingState   string            `json:"shippingState,omitempty"`
	ShippingCity    string            `json:"shippingCity,omitempty"`
	ShippingPincode string            `json:"shippingPincode,omitempty"`
	ShippingCharge  decimal.Decimal   `json:"shippingCharge"`
	Mobile          string            `json:"mobile"`
	Email           string            `json:"email"`
	TotalAmount     decimal.Decimal   `json:"totalAmount"`
	OrderNote       string            `json:"orderNote"`
	Status          enums.OrderStatus `json:"status"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// OrderDetailDTO embeds the buyer summary.
type OrderDetailDTO struct {
	OrderDTO
	User *users.SummaryDTO `json:"user,omitempty"`
}

// AdminListFilters are the query filters of the admin order list.
type AdminListFilters struct {
	Status    *enums.OrderStatus
	UserID    *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	Page      int
	Limit     int
}

// AdminOrderList is one page of the admin listing.
type AdminOrderList struct {
	Orders []OrderDTO `json:"orders"`
	pagination.Meta
}

func toOrderDTO(o models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return OrderDTO{
		ID:              o.ID,
		OrderID:         o.OrderID(),
		UserID:          o.UserID,
		FName:           o.FName,
		LName:           o.LName,
		Items:           items,
		CouponID:        o.CouponID,
		PaymentMethod:   o.PaymentMethod,
		StreetAddress:   o.StreetAddress,
		Country:         o.Country,
		State:           o.State,
		City:            o.City,
		Pincode:         o.Pincode,
		ShippingAddress: o.ShippingAddress,
		ShippingCountry: o.ShippingCountry,
		ShippingState:   o.ShippingState,
		ShippingCity:    o.ShippingCity,
		ShippingPincode: o.ShippingPincode,
		ShippingCharge:  o.ShippingCharge,
		Mobile:          o.Mobile,
		Email:           o.Email,
		TotalAmount:     o.TotalAmount,
		OrderNote:       o.OrderNote,
		Status:          o.Status,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrderDTOs(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(rows))
	for _, o := range rows {
		out = append(out, toOrderDTO(o))
	}
	return out
}
