package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/outbox"
	"github.com/molimor/molimor-backend/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and how its data
// decodes.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

// NonRetryableError marks rows that will never publish, however often they
// are retried.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// EventRegistry resolves outbox rows for the publisher.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func orderEvent[T any](eventType enums.OutboxEventType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  enums.AggregateOrder,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes every order event to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	descriptors := []EventDescriptor{
		orderEvent[payloads.OrderPlacedEvent](enums.EventOrderPlaced, cfg.OrdersTopic),
		orderEvent[payloads.InvoiceResendRequestedEvent](enums.EventInvoiceResendAsked, cfg.OrdersTopic),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	env, _, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, permanent("%s: %w", event.EventType, err)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
