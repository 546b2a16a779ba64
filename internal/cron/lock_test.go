package cron

import (
	"context"
	"testing"
	"time"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExcludesSecondHolder(t *testing.T) {
	store := newMemoryStore()
	first, err := NewRedisLock(store, "cron:lock", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "cron:lock", 0)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire, got %v %v", ok, err)
	}
	if store.ttls["cron:lock"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls["cron:lock"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second holder must not acquire")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, ok := store.values["cron:lock"]; !ok {
		t.Fatal("non-owner release must not delete the key")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock free after release")
	}
}

func TestRedisLockLeavesStolenKey(t *testing.T) {
	store := newMemoryStore()
	lock, _ := NewRedisLock(store, "cron:lock", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	store.values["cron:lock"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["cron:lock"] != "someone-else" {
		t.Fatal("release must not delete a key owned by another worker")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisLock(newMemoryStore(), "", 0); err == nil {
		t.Fatal("expected error for empty key")
	}
}
