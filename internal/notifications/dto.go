package notifications

import (
	"time"

	"github.com/google/uuid"
)

// PendingItemDTO is one ordered product of an unacknowledged order notification.
type PendingItemDTO struct {
	NotificationID uuid.UUID `json:"notificationId"`
	OrderID        string    `json:"orderId"`
	ProductID      uuid.UUID `json:"productId"`
	Title          string    `json:"title"`
	SKU            string    `json:"sku"`
	Image          *string   `json:"image"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DeleteResultDTO reports how many notifications a bulk delete removed.
type DeleteResultDTO struct {
	DeletedCount int64 `json:"deletedCount"`
}
