package fulfillment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
	"github.com/molimor/molimor-backend/pkg/outbox"
	"github.com/molimor/molimor-backend/pkg/outbox/payloads"
)

type orderResolver interface {
	LoadByOrderID(ctx context.Context, orderID string) (*models.Order, error)
}

type invoiceResender interface {
	ResendInvoice(ctx context.Context, order models.Order) *Report
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ResendResult is the outcome of an invoice resend request.
type ResendResult struct {
	OrderID string            `json:"orderId"`
	Queued  bool              `json:"queued"`
	State   State             `json:"state,omitempty"`
	Steps   map[string]string `json:"steps,omitempty"`
	Errors  []string          `json:"errors,omitempty"`
}

// Resender lets an operator re-send the invoice of a placed order. Inline mode
// runs the invoice steps in the request; outbox mode queues them for the worker.
type Resender struct {
	orders   orderResolver
	pipeline invoiceResender
	tx       txRunner
	outbox   outbox.Emitter
	cfg      config.FulfillmentConfig
}

// NewResender wires resend dependencies.
func NewResender(orders orderResolver, pipeline invoiceResender, tx txRunner, emitter outbox.Emitter, cfg config.FulfillmentConfig) (*Resender, error) {
	if orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order resolver required")
	}
	if cfg.IsOutbox() {
		if tx == nil || emitter == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter and transaction runner required in outbox mode")
		}
	} else if pipeline == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "fulfillment pipeline required in inline mode")
	}
	return &Resender{orders: orders, pipeline: pipeline, tx: tx, outbox: emitter, cfg: cfg}, nil
}

// Resend re-sends the invoice of orderID on behalf of actor.
func (r *Resender) Resend(ctx context.Context, actor uuid.UUID, orderID string) (*ResendResult, error) {
	order, err := r.orders.LoadByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if r.cfg.IsOutbox() {
		err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventInvoiceResendAsked,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: actor, Role: string(enums.UserRoleAdmin)},
				Data:          payloads.InvoiceResendRequestedEvent{OrderID: order.ID, RequestedBy: actor},
				Version:       1,
			})
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue invoice resend")
		}
		return &ResendResult{OrderID: order.OrderID(), Queued: true}, nil
	}

	report := r.pipeline.ResendInvoice(ctx, *order)
	result := &ResendResult{
		OrderID: order.OrderID(),
		State:   report.State(),
		Steps:   report.Results(),
	}
	for _, stepErr := range report.StepErrors() {
		result.Errors = append(result.Errors, fmt.Sprintf("%s failed", stepErr.Step))
	}
	return result, nil
}
