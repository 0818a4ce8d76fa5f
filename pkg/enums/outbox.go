package enums

// OutboxAggregateType names the entity an outbox event belongs to. Orders
// are the only aggregate today.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

var aggregateTypes = values[OutboxAggregateType]{AggregateOrder}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType is the event_type column and the event_type message
// attribute consumers route on.
type OutboxEventType string

const (
	EventOrderPlaced        OutboxEventType = "order_placed"
	EventInvoiceResendAsked OutboxEventType = "invoice_resend_requested"
)

var eventTypes = values[OutboxEventType]{EventOrderPlaced, EventInvoiceResendAsked}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse("event type", value)
}

// OutboxDLQErrorReason says why the publisher gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = values[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
