package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// EnvelopeVersion is written to every new envelope. Consumers reject
// envelopes newer than the version they understand.
const EnvelopeVersion = 1

// DomainEvent is the in-process description of an event to queue.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case e.EventType == "":
		return errors.New("event type required")
	case e.AggregateType == "":
		return errors.New("aggregate type required")
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%s: aggregate id required", e.EventType)
	case e.Data == nil:
		return fmt.Errorf("%s: data required", e.EventType)
	case e.Version < 0 || e.Version > EnvelopeVersion:
		return fmt.Errorf("%s: unsupported envelope version %d", e.EventType, e.Version)
	}
	return nil
}

// Service writes events into outbox_events inside the caller's transaction so
// they commit or roll back with the state change that produced them.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues a single event.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	return s.EmitAll(ctx, tx, event)
}

// EmitAll queues events in order with one insert. Rows share a created_at
// tick, so the row id keeps them ordered for the publisher.
func (s *Service) EmitAll(ctx context.Context, tx *gorm.DB, events ...DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if len(events) == 0 {
		return nil
	}

	rows := make([]models.OutboxEvent, 0, len(events))
	envelopes := make([]PayloadEnvelope, 0, len(events))
	for _, event := range events {
		row, envelope, err := s.buildRow(event)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		envelopes = append(envelopes, envelope)
	}
	if err := s.repo.InsertAll(tx, rows); err != nil {
		return fmt.Errorf("insert outbox events: %w", err)
	}

	if s.logg != nil {
		for i, row := range rows {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"event_id":       envelopes[i].EventID,
				"event_type":     row.EventType,
				"aggregate_id":   row.AggregateID.String(),
				"aggregate_type": row.AggregateType,
			}), "outbox event queued")
		}
	}
	return nil
}

func (s *Service) buildRow(event DomainEvent) (models.OutboxEvent, PayloadEnvelope, error) {
	if err := event.validate(); err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("%s: encode data: %w", event.EventType, err)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	version := event.Version
	if version == 0 {
		version = EnvelopeVersion
	}
	envelope := PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("%s: encode envelope: %w", event.EventType, err)
	}
	return models.OutboxEvent{
		ID:            uuid.Must(uuid.NewV7()),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope, nil
}
