package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/skillatlas/taxonomy-service/logger"
	"github.com/skillatlas/taxonomy-service/types"
)

func newTestCache(t *testing.T, config *types.CacheConfig) *MemoryCache {
	t.Helper()

	c, err := NewMemoryCache(context.Background(), logger.NewZapWrapper(zap.NewNop()), config)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	return c
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := newTestCache(t, nil)

	if err := c.Set("key", "value", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found := c.Get("key")
	if !found {
		t.Fatal("expected key to be present")
	}
	if got != "value" {
		t.Fatalf("got %v, want value", got)
	}

	if _, found := c.Get("absent"); found {
		t.Fatal("expected absent key to be a miss")
	}
}

func TestMemoryCacheRejectsEmptyKey(t *testing.T) {
	c := newTestCache(t, nil)

	err := c.Set("", "value", time.Minute)
	if !errors.Is(err, types.ErrCacheKeyEmpty) {
		t.Fatalf("got %v, want ErrCacheKeyEmpty", err)
	}
}

func TestMemoryCacheExpiryOnRead(t *testing.T) {
	c := newTestCache(t, nil)

	if err := c.Set("short", 42, 20*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, found := c.Get("short"); !found {
		t.Fatal("entry should be readable before expiry")
	}

	time.Sleep(40 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Fatal("entry should be expired")
	}
	if size := c.Size(); size != 0 {
		t.Fatalf("expired entry should be evicted on read, size = %d", size)
	}
}

func TestMemoryCacheCleanupSweep(t *testing.T) {
	c := newTestCache(t, &types.CacheConfig{CleanupInterval: 20 * time.Millisecond})

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if err := c.Set("sweep", "gone", 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}

	deadline := time.After(time.Second)
	for c.Size() > 0 {
		select {
		case <-deadline:
			t.Fatal("cleanup sweep never evicted the expired entry")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMemoryCacheLifecycle(t *testing.T) {
	c := newTestCache(t, nil)

	if c.IsRunning() {
		t.Fatal("new cache must not be running")
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.IsRunning() {
		t.Fatal("cache should be running after Start")
	}

	if err := c.Start(); !errors.Is(err, types.ErrServiceAlreadyRunning) {
		t.Fatalf("second Start: got %v, want ErrServiceAlreadyRunning", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(); !errors.Is(err, types.ErrServiceNotRunning) {
		t.Fatalf("second Stop: got %v, want ErrServiceNotRunning", err)
	}
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	c := newTestCache(t, nil)

	_ = c.Set("a", 1, time.Minute)
	_ = c.Set("b", 2, time.Minute)

	if err := c.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found := c.Get("a"); found {
		t.Fatal("deleted key should be absent")
	}
	if size := c.Size(); size != 1 {
		t.Fatalf("size = %d, want 1", size)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if size := c.Size(); size != 0 {
		t.Fatalf("size after Clear = %d, want 0", size)
	}
}

func TestMemoryCacheTTLClamped(t *testing.T) {
	c := newTestCache(t, nil)

	if err := c.Set("long", "v", 48*time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	c.mu.RLock()
	entry := c.data["long"]
	c.mu.RUnlock()

	if entry.TTL != MaxTTL {
		t.Fatalf("TTL = %v, want clamped to %v", entry.TTL, MaxTTL)
	}
}
