package availability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	cacheNamespace   = "availability"
	versionNamespace = "availability_version"
	baseCombination  = "base"
)

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	CacheKey(parts ...string) string
	CounterKey(name string) string
}

// cachedService memoises IsAvailable counts per product version. Stock
// events bump the version, which orphans every cached count for the product.
type cachedService struct {
	Service
	store cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewCachedService wraps inner with a read-through cache. A non-positive ttl
// returns inner unchanged.
func NewCachedService(inner Service, store cacheStore, ttl time.Duration, logg *logger.Logger) (Service, error) {
	if inner == nil {
		return nil, fmt.Errorf("availability service required")
	}
	if ttl <= 0 || store == nil {
		return inner, nil
	}
	return &cachedService{Service: inner, store: store, ttl: ttl, logg: logg}, nil
}

func (s *cachedService) IsAvailable(ctx context.Context, productID uuid.UUID, combinationID *uuid.UUID, qty int) (*Result, error) {
	if productID == uuid.Nil || qty < 1 {
		return s.Service.IsAvailable(ctx, productID, combinationID, qty)
	}
	key := stock.NewKey(productID, combinationID)

	version, err := currentVersion(ctx, s.store, productID)
	if err != nil {
		s.warn(ctx, "availability.cache_version_failed", err)
		return s.Service.IsAvailable(ctx, productID, combinationID, qty)
	}
	cacheKey := s.store.CacheKey(cacheNamespace, productID.String(), combinationPart(key), "v"+strconv.FormatInt(version, 10))

	if raw, err := s.store.Get(ctx, cacheKey); err == nil {
		if available, convErr := strconv.Atoi(raw); convErr == nil {
			return &Result{
				ProductID:     key.ProductID,
				CombinationID: key.CombinationID,
				Requested:     qty,
				Available:     available,
				OK:            available >= qty,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.warn(ctx, "availability.cache_read_failed", err)
	}

	result, err := s.Service.IsAvailable(ctx, productID, combinationID, qty)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, cacheKey, strconv.Itoa(result.Available), s.ttl); err != nil {
		s.warn(ctx, "availability.cache_write_failed", err)
	}
	return result, nil
}

func (s *cachedService) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

// CacheInvalidator retires cached availability for a product.
type CacheInvalidator struct {
	store cacheStore
}

func NewCacheInvalidator(store cacheStore) (*CacheInvalidator, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store required")
	}
	return &CacheInvalidator{store: store}, nil
}

// Invalidate bumps the product's cache version.
func (i *CacheInvalidator) Invalidate(ctx context.Context, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return fmt.Errorf("product id required")
	}
	_, err := i.store.Incr(ctx, versionKey(i.store, productID))
	return err
}

func currentVersion(ctx context.Context, store cacheStore, productID uuid.UUID) (int64, error) {
	raw, err := store.Get(ctx, versionKey(store, productID))
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func versionKey(store cacheStore, productID uuid.UUID) string {
	return store.CounterKey(versionNamespace + ":" + productID.String())
}

func combinationPart(key stock.Key) string {
	if key.CombinationID == nil {
		return baseCombination
	}
	return key.CombinationID.String()
}
