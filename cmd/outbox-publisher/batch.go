package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/outbox/registry"
	"github.com/molimor/molimor-backend/pkg/telemetry"
)

// inflight is one outbox row handed to Pub/Sub and not yet acknowledged.
type inflight struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	result   publishResult
	span     trace.Span
	fields   map[string]any
	sendErr  error
}

// processBatch locks a batch of pending rows, publishes all of them, then
// waits for each ack and records the outcome in the same transaction. The
// Pub/Sub client batches the sends; waiting per message would serialize them.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()

		batch := make([]*inflight, 0, len(events))
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				if err := s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, s.eventFields(event, nil)); err != nil {
					return err
				}
				continue
			}
			batch = append(batch, s.send(publishCtx, event, resolved))
		}

		for _, msg := range batch {
			if err := s.settle(ctx, publishCtx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) send(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) *inflight {
	topic := resolved.Descriptor.Topic
	msg := &inflight{event: event, resolved: resolved, fields: s.eventFields(event, resolved)}

	pub := s.publisherFor(topic)
	if pub == nil {
		msg.sendErr = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		return msg
	}

	spanCtx, span := telemetry.Tracer().Start(ctx, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", topic),
			attribute.String("molimor.event_type", string(event.EventType)),
			attribute.String("molimor.order_id", event.AggregateID.String()),
		),
	)
	msg.span = span
	msg.result = pub.Publish(spanCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: telemetry.InjectAttributes(spanCtx, messageAttributes(event, resolved)),
	})
	if msg.result == nil {
		msg.sendErr = registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	return msg
}

// messageAttributes are what the fulfillment consumer routes and dedupes on.
func messageAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	return map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"version":        strconv.Itoa(resolved.Envelope.Version),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (s *Service) settle(ctx, publishCtx context.Context, tx *gorm.DB, msg *inflight) error {
	err := msg.sendErr
	if err == nil {
		_, err = msg.result.Get(publishCtx)
	}
	if msg.span != nil {
		if err != nil {
			msg.span.RecordError(err)
			msg.span.SetStatus(codes.Error, "publish failed")
		}
		msg.span.End()
	}

	event := msg.event
	if err == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, msg.fields), "outbox event published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, msg.fields)
	}

	attempt := event.AttemptCount + 1
	msg.fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		msg.fields["terminal_reason"] = "max_attempts"
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err), msg.fields)
	}

	logCtx := s.logg.WithField(s.logg.WithFields(ctx, msg.fields), "error", err.Error())
	s.logg.Warn(logCtx, "outbox publish failed")
	s.metrics.IncFailed(string(event.EventType))
	if err := s.repo.MarkFailedTx(tx, event.ID, err); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

// deadLetter copies the row into the DLQ and retires it from the outbox.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error())
	s.logg.Warn(logCtx, "outbox event will not be retried")

	message := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"order_id":       event.AggregateID.String(),
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
			fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
