package enums

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderStatuses = values[OrderStatus]{
	OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled,
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

// ParseOrderStatus accepts only the exact lowercase names.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse("order status", value)
}
