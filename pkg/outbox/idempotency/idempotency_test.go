package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
	deletes     int
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.deletes++
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestCheckAndMarkProcessed_FirstTime(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	eventID := uuid.New()
	already, err := manager.CheckAndMarkProcessed(context.Background(), "availability-cache", eventID)
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if already {
		t.Fatalf("expected first call to return false, got true")
	}

	expectedKey := "sf:idempotency:evt:processed:availability-cache:" + eventID.String()
	if store.lastKey != expectedKey {
		t.Fatalf("unexpected key: %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", store.lastTTL)
	}
}

func TestCheckAndMarkProcessed_AlreadyProcessed(t *testing.T) {
	store := &fakeStore{setNXResult: false}
	manager, err := NewManager(store, 12*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	eventID := uuid.New()
	already, err := manager.CheckAndMarkProcessed(context.Background(), "availability-cache", eventID)
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if !already {
		t.Fatalf("expected already processed, got false")
	}
}

func TestCheckAndMarkProcessed_Error(t *testing.T) {
	store := &fakeStore{setNXError: errors.New("boom")}
	manager, err := NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	_, err = manager.CheckAndMarkProcessed(context.Background(), "availability-cache", uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteProcessed(t *testing.T) {
	store := &fakeStore{}
	manager, err := NewManager(store, 1*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	eventID := uuid.New()
	if err := manager.Delete(context.Background(), "availability-cache", eventID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	expected := "sf:idempotency:evt:processed:availability-cache:" + eventID.String()
	if store.lastDeleted != expected {
		t.Fatalf("unexpected deleted key %q", store.lastDeleted)
	}
}

func TestOnceRunsHandlerOnFirstDelivery(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, _ := NewManager(store, time.Hour)
	calls := 0

	ran, err := manager.Once(context.Background(), "availability-cache", uuid.New(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || !ran || calls != 1 {
		t.Fatalf("expected handler to run once, ran=%v calls=%d err=%v", ran, calls, err)
	}
	if store.deletes != 0 {
		t.Fatalf("marker must be kept after success")
	}
}

func TestOnceSkipsProcessedEvent(t *testing.T) {
	store := &fakeStore{setNXResult: false}
	manager, _ := NewManager(store, time.Hour)

	ran, err := manager.Once(context.Background(), "availability-cache", uuid.New(), func(context.Context) error {
		t.Fatalf("handler must not run for a processed event")
		return nil
	})
	if err != nil || ran {
		t.Fatalf("expected skip, ran=%v err=%v", ran, err)
	}
}

func TestOnceReleasesMarkerOnFailure(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, _ := NewManager(store, time.Hour)
	eventID := uuid.New()
	boom := errors.New("boom")

	ran, err := manager.Once(context.Background(), "availability-cache", eventID, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) || !ran {
		t.Fatalf("expected handler error, ran=%v err=%v", ran, err)
	}
	if store.lastDeleted != "sf:idempotency:evt:processed:availability-cache:"+eventID.String() {
		t.Fatalf("expected marker release, got %q", store.lastDeleted)
	}
}

func TestNewManagerValidates(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewManager(&fakeStore{}, -time.Second); err == nil {
		t.Fatalf("expected error for negative ttl")
	}
}
