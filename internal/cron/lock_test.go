package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryLockStore struct {
	values map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "molimor:cron:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "molimor:cron:lock:test", time.Minute)
	ctx := context.Background()

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second instance acquired a held lock")
	}
	// a non-owner release must not free the lock
	if err := second.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, ok := store.values["molimor:cron:lock:test"]; !ok {
		t.Fatal("lock released by non-owner")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("lock not reacquirable after release")
	}
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "k", 0)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	delete(store.values, "k")
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release of expired lock: %v", err)
	}
}

func TestRedisLockOwnerNamesInstance(t *testing.T) {
	t.Setenv("MOLIMOR_WORKER_ID", "cron-7")
	store := &memoryLockStore{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "k", time.Minute)
	ctx := context.Background()

	if lock.Owner() != "" {
		t.Fatalf("owner set before acquire: %q", lock.Owner())
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	if !strings.HasPrefix(lock.Owner(), "cron-7:") {
		t.Fatalf("owner %q does not name the instance", lock.Owner())
	}
	if store.values["k"] != lock.Owner() {
		t.Fatalf("stored value %q differs from owner %q", store.values["k"], lock.Owner())
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("re-acquire by holder should succeed")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if lock.Owner() != "" {
		t.Fatal("owner kept after release")
	}
}
