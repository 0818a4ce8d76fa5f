package fulfillment

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/metrics"
)

type runner interface {
	Run(ctx context.Context, order models.Order) *Report
}

// Dispatcher runs fulfillment in-process on a detached goroutine per order.
// It tracks in-flight runs so shutdown can wait for them.
type Dispatcher struct {
	runner  runner
	metrics *metrics.FulfillmentMetrics
	logg    *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher builds an inline dispatcher around runner.
func NewDispatcher(r runner, m *metrics.FulfillmentMetrics, logg *logger.Logger) (*Dispatcher, error) {
	if r == nil {
		return nil, fmt.Errorf("fulfillment runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if m == nil {
		m = metrics.NewFulfillmentMetrics(nil)
	}
	return &Dispatcher{runner: r, metrics: m, logg: logg}, nil
}

// Schedule starts fulfillment for order and returns immediately. The run keeps
// ctx's values (request id, trace) but not its cancellation, so it outlives
// the request that placed the order.
func (d *Dispatcher) Schedule(ctx context.Context, order models.Order) {
	detached := context.WithoutCancel(ctx)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logg.Error(d.logg.WithOrderID(detached, order.OrderID()), "fulfillment dropped", fmt.Errorf("dispatcher is draining"))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.metrics.IncPanic()
				d.logg.Error(
					d.logg.WithFields(detached, map[string]any{"order_id": order.OrderID(), "stack": string(debug.Stack())}),
					"fulfillment panicked",
					fmt.Errorf("panic: %v", r),
				)
			}
		}()
		d.runner.Run(detached, order)
	}()
}

// Drain stops accepting work and waits for in-flight runs until ctx ends.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fulfillment drain: %w", ctx.Err())
	}
}
