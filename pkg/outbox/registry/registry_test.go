package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/outbox/payloads"
)

func orderPlacedRow(t *testing.T, data string) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"` + uuid.NewString() + `","occurredAt":"2026-03-01T10:00:00Z","data":` + data + `}`),
	}
}

func TestResolveOrderPlaced(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders"})
	require.NoError(t, err)

	orderID := uuid.New()
	resolved, err := reg.Resolve(orderPlacedRow(t, `{"order_id":"`+orderID.String()+`","order_number":500002}`))
	require.NoError(t, err)
	assert.Equal(t, "orders", resolved.Descriptor.Topic)

	payload, ok := resolved.Payload.(*payloads.OrderPlacedEvent)
	require.True(t, ok)
	assert.Equal(t, orderID, payload.OrderID)
	assert.Equal(t, int64(500002), payload.OrderNumber)
}

func TestResolveRejectsBadRowsAsNonRetryable(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders"})
	require.NoError(t, err)

	cases := map[string]models.OutboxEvent{
		"unknown type": func() models.OutboxEvent {
			row := orderPlacedRow(t, `{}`)
			row.EventType = "mystery"
			return row
		}(),
		"aggregate mismatch": func() models.OutboxEvent {
			row := orderPlacedRow(t, `{}`)
			row.AggregateType = "cart"
			return row
		}(),
		"missing aggregate": func() models.OutboxEvent {
			row := orderPlacedRow(t, `{}`)
			row.AggregateID = uuid.Nil
			return row
		}(),
		"null data": orderPlacedRow(t, `null`),
		"bad event id": func() models.OutboxEvent {
			row := orderPlacedRow(t, `{}`)
			row.Payload = json.RawMessage(`{"version":1,"eventId":"evt-1","data":{}}`)
			return row
		}(),
	}
	for name, row := range cases {
		_, err := reg.Resolve(row)
		var nonRetry NonRetryableError
		assert.Truef(t, errors.As(err, &nonRetry), "%s: expected NonRetryableError, got %v", name, err)
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err)
}

func TestOrderDecoders(t *testing.T) {
	decoders := NewOrderDecoders()
	orderID := uuid.New()

	decoded, err := decoders.Decode(enums.EventInvoiceResendAsked, 1, json.RawMessage(`{"order_id":"`+orderID.String()+`"}`))
	require.NoError(t, err)
	resend, ok := decoded.(*payloads.InvoiceResendRequestedEvent)
	require.True(t, ok)
	assert.Equal(t, orderID, resend.OrderID)

	_, err = decoders.Decode(enums.EventOrderPlaced, 2, json.RawMessage(`{}`))
	assert.Error(t, err, "unregistered versions must fail")

	_, err = decoders.Decode(enums.EventOrderPlaced, 1, json.RawMessage(`{"order_id":`))
	assert.Error(t, err, "truncated payload")

	decoders.Register(enums.EventOrderPlaced, 2, func(json.RawMessage) (any, error) { return "v2", nil })
	decoded, err = decoders.Decode(enums.EventOrderPlaced, 2, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "v2", decoded)
}
