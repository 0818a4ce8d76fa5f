package payloads

import "github.com/google/uuid"

// OrderPlacedEvent asks the fulfillment worker to run the post-order pipeline.
type OrderPlacedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber int64     `json:"order_number"`
	UserID      uuid.UUID `json:"user_id"`
}

// InvoiceResendRequestedEvent asks the worker to re-send the invoice email only.
type InvoiceResendRequestedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	RequestedBy uuid.UUID `json:"requested_by"`
}
