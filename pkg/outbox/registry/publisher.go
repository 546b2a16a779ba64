// Package registry maps outbox event types to their topic and payload schema
// and decodes rows for the publisher.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row the publisher must dead-letter instead of
// retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// EventRegistry holds the descriptor for every event type the publisher may
// see.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	validate *validator.Validate
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.OrdersTopic == "":
		return nil, errors.New("orders topic is required")
	case cfg.StockTopic == "":
		return nil, errors.New("stock topic is required")
	}

	orders, stock := cfg.OrdersTopic, cfg.StockTopic
	descriptors := []EventDescriptor{
		describe[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, orders),
		describe[payloads.OrderConfirmedEvent](enums.EventOrderConfirmed, enums.AggregateOrder, orders),
		describe[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, orders),
		describe[payloads.OrderCancelledEvent](enums.EventOrderCancelled, enums.AggregateOrder, orders),
		describe[payloads.OrderExpiredEvent](enums.EventOrderExpired, enums.AggregateOrder, orders),
		describe[payloads.PaymentFailedEvent](enums.EventPaymentFailed, enums.AggregateOrder, orders),
		describe[payloads.BatchStatusChangedEvent](enums.EventBatchStatusChanged, enums.AggregateStockEntry, stock),
		describe[payloads.StockAllocatedEvent](enums.EventStockAllocated, enums.AggregateStockEntry, stock),
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor, len(descriptors)),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, desc := range descriptors {
		if _, dup := reg.entries[desc.EventType]; dup {
			return nil, fmt.Errorf("event type %s registered twice", desc.EventType)
		}
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the typed
// payload. Every failure is non-retryable since the row will never change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	if envelope.Version < 1 || envelope.Version > outbox.EnvelopeVersion {
		return nil, nonRetryable("unsupported envelope version %d", envelope.Version)
	}
	if envelope.EventID == "" {
		return nil, nonRetryable("envelope missing event id")
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	if err := r.validate.Struct(payload); err != nil {
		return nil, nonRetryable("invalid %s payload: %w", event.EventType, err)
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
