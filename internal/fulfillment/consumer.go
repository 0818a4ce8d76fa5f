package fulfillment

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/outbox"
	"github.com/molimor/molimor-backend/pkg/outbox/idempotency"
	"github.com/molimor/molimor-backend/pkg/outbox/payloads"
	"github.com/molimor/molimor-backend/pkg/outbox/registry"
	"github.com/molimor/molimor-backend/pkg/telemetry"
)

const consumerName = "order-fulfillment"

type orderLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type pipelineRunner interface {
	Run(ctx context.Context, order models.Order) *Report
	ResendInvoice(ctx context.Context, order models.Order) *Report
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer runs the fulfillment pipeline for order events delivered from the
// outbox through Pub/Sub.
type Consumer struct {
	orders       orderLoader
	pipeline     pipelineRunner
	subscription receiver
	idempotency  *idempotency.Manager
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

// NewConsumer builds an order fulfillment consumer.
func NewConsumer(orders orderLoader, pipeline pipelineRunner, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	return newConsumer(orders, pipeline, subscription, manager, logg)
}

func newConsumer(orders orderLoader, pipeline pipelineRunner, subscription receiver, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if orders == nil {
		return nil, fmt.Errorf("order loader required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("fulfillment pipeline required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		orders:       orders,
		pipeline:     pipeline,
		subscription: subscription,
		idempotency:  manager,
		decoders:     registry.NewOrderDecoders(),
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("orders subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

// process handles one delivery. Step failures inside the pipeline are
// best-effort and still ack; only failures to start the pipeline nack.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	ctx = telemetry.ExtractAttributes(ctx, msg.Attributes)
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	ctx, span := telemetry.Tracer().Start(ctx, "fulfillment.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", msg.ID),
			attribute.String("molimor.event_type", string(eventType)),
		))
	defer span.End()

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	if !eventType.IsValid() {
		c.logg.Info(logCtx, "skipping unknown event")
		return processResult{ack: true}
	}

	envelope, eventID, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "unusable envelope", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	claim, err := c.idempotency.Claim(ctx, consumerName, eventID)
	switch {
	case errors.Is(err, idempotency.ErrInFlight):
		c.logg.Info(logCtx, "event held by another delivery")
		return processResult{nack: true}
	case err != nil:
		c.logg.Error(logCtx, "idempotency claim failed", err)
		return processResult{nack: true}
	case claim == nil:
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handle(logCtx, payload); err != nil {
		c.logg.Error(logCtx, "fulfillment handling failed", err)
		if relErr := claim.Release(context.WithoutCancel(ctx)); relErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", relErr.Error()), "failed to release idempotency claim")
		}
		return processResult{nack: true}
	}
	if err := claim.Complete(context.WithoutCancel(ctx)); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "failed to record event as processed")
	}
	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, payload any) error {
	switch p := payload.(type) {
	case *payloads.OrderPlacedEvent:
		order, err := c.load(ctx, p.OrderID)
		if err != nil || order == nil {
			return err
		}
		c.pipeline.Run(c.logg.WithOrderID(ctx, order.OrderID()), *order)
		return nil
	case *payloads.InvoiceResendRequestedEvent:
		order, err := c.load(ctx, p.OrderID)
		if err != nil || order == nil {
			return err
		}
		ctx = c.logg.WithFields(ctx, map[string]any{"order_id": order.OrderID(), "requested_by": p.RequestedBy.String()})
		c.pipeline.ResendInvoice(ctx, *order)
		return nil
	default:
		c.logg.Info(ctx, "payload not handled")
		return nil
	}
}

// load returns nil without error when the order no longer exists; there is
// nothing a redelivery could fix.
func (c *Consumer) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := c.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.logg.Warn(ctx, "order for event not found")
			return nil, nil
		}
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return order, nil
}
