package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is stamped on events emitted without an explicit version.
const CurrentVersion = 1

var ErrEmptyData = errors.New("envelope carries no data")

// Envelope is what outbox_events.payload stores and what the publisher sends
// as the message body. Data is the event-specific payload.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ActorRef names the caller that triggered the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// hasData reports whether Data holds something other than blanks or null.
func (e Envelope) hasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// DecodeEnvelope parses raw and returns the envelope with its parsed event id.
// A malformed id or an empty Data is an error.
func DecodeEnvelope(raw []byte) (Envelope, uuid.UUID, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, uuid.Nil, fmt.Errorf("decode envelope: %w", err)
	}
	id, err := uuid.Parse(env.EventID)
	if err != nil {
		return env, uuid.Nil, fmt.Errorf("envelope event id %q: %w", env.EventID, err)
	}
	if !env.hasData() {
		return env, id, ErrEmptyData
	}
	return env, id, nil
}
