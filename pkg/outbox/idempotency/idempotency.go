// Package idempotency keeps Pub/Sub consumers from handling one event twice.
//
// A delivery first claims the event with a short lease. Finishing the work
// turns the lease into a long-lived "done" marker; failing releases it so a
// redelivery can try again. A worker that dies mid-event leaves only the
// lease behind, which expires on its own.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLease = 10 * time.Minute

	markerLeased = "leased"
	markerDone   = "done"
)

// ErrInFlight means another delivery holds the lease on the event.
var ErrInFlight = errors.New("event is being handled by another delivery")

// Store is the Redis surface the manager needs; *redis.Client satisfies it.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	ConsumerKey(consumer, eventID string) string
}

type Manager struct {
	store Store
	ttl   time.Duration
	lease time.Duration
}

// NewManager keeps done markers for ttl. A zero ttl keeps them forever.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	lease := DefaultLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

// Claim is one consumer's hold on one event.
type Claim struct {
	store Store
	key   string
	ttl   time.Duration
}

// Claim leases eventID for consumer. A nil Claim with a nil error means the
// event is already done; ErrInFlight means another delivery holds the lease.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (*Claim, error) {
	switch {
	case consumer == "":
		return nil, errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return nil, errors.New("event id is required")
	}
	key := m.store.ConsumerKey(consumer, eventID.String())
	ok, err := m.store.SetNX(ctx, key, markerLeased, m.lease)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	if ok {
		return &Claim{store: m.store, key: key, ttl: m.ttl}, nil
	}
	// a lease that expired between the two calls also reads as in flight
	if marker, err := m.store.Get(ctx, key); err == nil && marker == markerDone {
		return nil, nil
	}
	return nil, ErrInFlight
}

// Complete records the event as handled.
func (c *Claim) Complete(ctx context.Context) error {
	return c.store.Set(ctx, c.key, markerDone, c.ttl)
}

// Release drops the lease so the event can be handled again.
func (c *Claim) Release(ctx context.Context) error {
	return c.store.Del(ctx, c.key)
}

func (c *Claim) Key() string { return c.key }
