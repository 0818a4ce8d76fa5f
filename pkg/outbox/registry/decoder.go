package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/outbox/payloads"
)

// DecoderFunc turns the envelope data of one event version into a typed payload.
type DecoderFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]DecoderFunc
}

// NewOrderDecoders registers the v1 decoders for every order event.
func NewOrderDecoders() *DecoderRegistry {
	reg := &DecoderRegistry{registry: make(map[registryKey]DecoderFunc)}
	reg.Register(enums.EventOrderPlaced, 1, decodeInto(func() any { return &payloads.OrderPlacedEvent{} }))
	reg.Register(enums.EventInvoiceResendAsked, 1, decodeInto(func() any { return &payloads.InvoiceResendRequestedEvent{} }))
	return reg
}

func decodeInto(factory func() any) DecoderFunc {
	return func(payload json.RawMessage) (any, error) {
		target := factory()
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, err
		}
		return target, nil
	}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}
