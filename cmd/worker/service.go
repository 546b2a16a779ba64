package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/internal/consumers/stockcache"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type eventProcessor interface {
	Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error
}

// Service drains the stock events subscription into the cache consumer.
type Service struct {
	subscription receiver
	processor    eventProcessor
	logg         *logger.Logger
}

func NewService(subscription receiver, processor eventProcessor, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("stock subscription is required")
	}
	if processor == nil {
		return nil, errors.New("event processor is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, processor: processor, logg: logg}, nil
}

// Run receives until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.handle(innerCtx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handle reports whether the message should be acked.
func (s *Service) handle(ctx context.Context, msg *gcppubsub.Message) bool {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"message_id":   msg.ID,
		"event_type":   msg.Attributes["event_type"],
		"aggregate_id": msg.Attributes["aggregate_id"],
	})

	eventType, envelope, err := decodeMessage(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping undecodable stock event")
		return true
	}

	if err := s.processor.Process(logCtx, eventType, envelope); err != nil {
		if errors.Is(err, stockcache.ErrMalformedEvent) || !pkgerrors.IsRetryable(err) {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping unprocessable stock event")
			return true
		}
		s.logg.Error(logCtx, "stock event handling failed", err)
		return false
	}
	return true
}

func decodeMessage(msg *gcppubsub.Message) (enums.OutboxEventType, outbox.PayloadEnvelope, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return "", envelope, fmt.Errorf("decode payload envelope: %w", err)
	}
	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return "", envelope, fmt.Errorf("event_type: %w", err)
	}
	if strings.TrimSpace(envelope.EventID) == "" {
		envelope.EventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if envelope.EventID == "" {
		return "", envelope, errors.New("event_id missing")
	}
	return eventType, envelope, nil
}
