// Package stockcache keeps cached availability honest by retiring a product's
// cached counts whenever a stock event touches it.
package stockcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// ConsumerName scopes processed-event markers in redis.
const ConsumerName = "availability-cache"

// ErrMalformedEvent marks deliveries that can never succeed and should be acked.
var ErrMalformedEvent = errors.New("malformed stock event")

type invalidator interface {
	Invalidate(ctx context.Context, productID uuid.UUID) error
}

type onceRunner interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

// stockEvent is the subset shared by batch_status_changed and stock_allocated.
type stockEvent struct {
	ProductID uuid.UUID `json:"product_id"`
}

// Consumer invalidates availability cache entries from stock events.
type Consumer struct {
	cache   invalidator
	manager onceRunner
	logg    *logger.Logger
	handled map[enums.OutboxEventType]struct{}
}

func NewConsumer(cache invalidator, manager onceRunner, logg *logger.Logger) (*Consumer, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache invalidator required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		cache:   cache,
		manager: manager,
		logg:    logg,
		handled: map[enums.OutboxEventType]struct{}{
			enums.EventBatchStatusChanged: {},
			enums.EventStockAllocated:     {},
		},
	}, nil
}

// Process handles one delivered envelope. Unhandled event types are acked
// without side effects. A returned error asks the caller to redeliver.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if _, ok := c.handled[eventType]; !ok {
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("%w: event id: %v", ErrMalformedEvent, err)
	}

	var payload stockEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if payload.ProductID == uuid.Nil {
		return fmt.Errorf("%w: missing product_id", ErrMalformedEvent)
	}

	ran, err := c.manager.Once(ctx, ConsumerName, eventID, func(ctx context.Context) error {
		return c.cache.Invalidate(ctx, payload.ProductID)
	})
	if err != nil {
		c.logg.Error(logCtx, "failed to invalidate availability cache", err)
		return err
	}
	if !ran {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	c.logg.Info(c.logg.WithField(logCtx, "product_id", payload.ProductID.String()), "availability cache invalidated")
	return nil
}
