package availability

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type memoryCache struct {
	values map[string]string
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryCache) Incr(_ context.Context, key string) (int64, error) {
	n, _ := strconv.ParseInt(m.values[key], 10, 64)
	n++
	m.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *memoryCache) CacheKey(parts ...string) string {
	return "cache:" + strings.Join(parts, ":")
}

func (m *memoryCache) CounterKey(name string) string {
	return "counter:" + name
}

type countingService struct {
	Service
	calls     int
	available int
}

func (c *countingService) IsAvailable(_ context.Context, productID uuid.UUID, combinationID *uuid.UUID, qty int) (*Result, error) {
	c.calls++
	return &Result{ProductID: productID, CombinationID: combinationID, Requested: qty, Available: c.available, OK: c.available >= qty}, nil
}

func TestCachedServiceServesRepeatReadsFromCache(t *testing.T) {
	inner := &countingService{available: 8}
	svc, err := NewCachedService(inner, newMemoryCache(), time.Minute, nil)
	if err != nil {
		t.Fatalf("new cached service: %v", err)
	}
	productID := uuid.New()

	first, err := svc.IsAvailable(context.Background(), productID, nil, 3)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := svc.IsAvailable(context.Background(), productID, nil, 10)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected one backing read, got %d", inner.calls)
	}
	if !first.OK || second.OK || second.Available != 8 || second.Requested != 10 {
		t.Fatalf("unexpected results %+v %+v", first, second)
	}
}

func TestCacheInvalidatorRetiresCachedCounts(t *testing.T) {
	store := newMemoryCache()
	inner := &countingService{available: 8}
	svc, _ := NewCachedService(inner, store, time.Minute, nil)
	invalidator, err := NewCacheInvalidator(store)
	if err != nil {
		t.Fatalf("new invalidator: %v", err)
	}
	productID := uuid.New()
	combinationID := uuid.New()

	if _, err := svc.IsAvailable(context.Background(), productID, &combinationID, 1); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	inner.available = 2
	if err := invalidator.Invalidate(context.Background(), productID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	result, err := svc.IsAvailable(context.Background(), productID, &combinationID, 1)
	if err != nil {
		t.Fatalf("read after invalidate: %v", err)
	}
	if inner.calls != 2 || result.Available != 2 {
		t.Fatalf("expected fresh read after invalidation, calls=%d available=%d", inner.calls, result.Available)
	}
}

func TestCachedServiceFallsBackWhenCacheUnavailable(t *testing.T) {
	store := newMemoryCache()
	store.getErr = errors.New("connection refused")
	inner := &countingService{available: 4}
	svc, _ := NewCachedService(inner, store, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.IsAvailable(context.Background(), uuid.New(), nil, 1); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if inner.calls != 2 {
		t.Fatalf("expected every read to reach the backing service, got %d", inner.calls)
	}
}

func TestNewCachedServiceDisabledReturnsInner(t *testing.T) {
	inner := &countingService{}
	svc, err := NewCachedService(inner, newMemoryCache(), 0, nil)
	if err != nil {
		t.Fatalf("new cached service: %v", err)
	}
	if svc != Service(inner) {
		t.Fatalf("expected inner service when ttl is zero")
	}
}

func TestCacheInvalidatorRejectsNilProduct(t *testing.T) {
	invalidator, _ := NewCacheInvalidator(newMemoryCache())
	if err := invalidator.Invalidate(context.Background(), uuid.Nil); err == nil {
		t.Fatalf("expected error for nil product")
	}
}
