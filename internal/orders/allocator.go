package orders

import (
	"context"
	"math/rand/v2"

	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
)

const (
	// OrderNumberStep is added to the current maximum order number. The gap
	// leaves room for numbers reserved out of band.
	OrderNumberStep = 2

	fallbackMin = 100000
	fallbackMax = 999999
)

type maxOrderNumberReader interface {
	FindMaxOrderNumber(ctx context.Context) (int64, bool, error)
}

// Allocator hands out human-facing order numbers. It is advisory: the unique
// index on orders.order_number is the authoritative check.
type Allocator struct {
	store  maxOrderNumberReader
	random func() int64
}

// NewAllocator builds an allocator reading the current maximum from store.
func NewAllocator(store maxOrderNumberReader) *Allocator {
	return &Allocator{
		store: store,
		random: func() int64 {
			return fallbackMin + rand.Int64N(fallbackMax-fallbackMin+1)
		},
	}
}

// Next returns max+OrderNumberStep, or a random six digit number when no
// order exists yet.
func (a *Allocator) Next(ctx context.Context) (int64, error) {
	current, ok, err := a.store.FindMaxOrderNumber(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read max order number")
	}
	if !ok {
		return a.random(), nil
	}
	return current + OrderNumberStep, nil
}
