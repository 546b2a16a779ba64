package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultPendingOrderTTL = 24 * time.Hour
	defaultSweepBatchSize  = 200
	maxSweepRounds         = 50
)

// PendingOrderTTLJobParams configure the pending order expiry sweep.
type PendingOrderTTLJobParams struct {
	Logger    *logger.Logger
	Orders    pendingOrderExpirer
	TTL       time.Duration
	BatchSize int
}

type pendingOrderExpirer interface {
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// NewPendingOrderTTLJob builds the job that cancels pending unpaid orders
// older than the TTL, releasing the stock demand they hold at checkout.
func NewPendingOrderTTLJob(params PendingOrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &pendingOrderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type pendingOrderTTLJob struct {
	logg   *logger.Logger
	orders pendingOrderExpirer
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *pendingOrderTTLJob) Name() string { return "pending-order-ttl" }

// Run sweeps in batches until a short batch signals the backlog is drained.
func (j *pendingOrderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	total := 0
	for round := 0; round < maxSweepRounds; round++ {
		expired, err := j.orders.ExpireStalePending(ctx, cutoff, j.batch)
		total += expired
		if err != nil {
			return fmt.Errorf("expire pending orders: %w", err)
		}
		if expired < j.batch {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"ttl":            j.ttl.String(),
		"orders_expired": total,
	})
	j.logg.Info(logCtx, "pending order sweep complete")
	return nil
}
