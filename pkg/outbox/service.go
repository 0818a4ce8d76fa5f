package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/logger"
)

var errNoTx = errors.New("outbox emit requires a transaction")

// DomainEvent is what order code hands to Emit. Version and OccurredAt are
// filled in when left zero.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter writes domain events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type inserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

type Service struct {
	repo  inserter
	logg  *logger.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

func NewService(repo inserter, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:  repo,
		logg:  logg,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
}

// Emit appends one outbox row on tx. The row commits or rolls back with
// whatever else tx writes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	row, eventID, err := s.buildRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert %s outbox row: %w", event.EventType, err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event_id":    eventID.String(),
		"event_type":  event.EventType,
		"order_id":    event.AggregateID.String(),
		"event_actor": actorRole(event.Actor),
	}), "outbox event queued")
	return nil
}

func (s *Service) buildRow(event DomainEvent) (models.OutboxEvent, uuid.UUID, error) {
	if !event.EventType.IsValid() {
		return models.OutboxEvent{}, uuid.Nil, fmt.Errorf("unknown outbox event type %q", event.EventType)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, uuid.Nil, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}

	eventID := s.newID()
	env := Envelope{
		Version:    event.Version,
		EventID:    eventID.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = CurrentVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = s.now()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, uuid.Nil, err
	}

	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}, eventID, nil
}

func actorRole(actor *ActorRef) string {
	if actor == nil {
		return "system"
	}
	return actor.Role
}
