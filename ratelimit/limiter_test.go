package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/skillatlas/taxonomy-service/logger"
	"github.com/skillatlas/taxonomy-service/types"
)

// memStore is a minimal KeyValueStore for exercising the limiter without a
// real cache behind it.
type memStore struct {
	mu   sync.Mutex
	data map[string]interface{}
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]interface{})}
}

func (s *memStore) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *memStore) Set(key string, value interface{}, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]interface{})
	return nil
}

func (s *memStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func newTestLimiter(config Config) *Limiter {
	return NewLimiter(newMemStore(), logger.NewZapWrapper(zap.NewNop()), config)
}

func TestSlidingWindowAdmitsUpToMax(t *testing.T) {
	l := newTestLimiter(Config{
		Name:    "test",
		Window:  time.Second,
		Max:     3,
		Sliding: true,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Check(ctx); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}

	err := l.Check(ctx)
	if err == nil {
		t.Fatal("request over the limit must be rejected")
	}
	if !errors.Is(err, types.ErrRateLimitExceeded) {
		t.Fatalf("got %v, want ErrRateLimitExceeded", err)
	}

	var limitErr *types.RateLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("error is %T, want *types.RateLimitError", err)
	}
	if limitErr.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want > 0", limitErr.RetryAfter)
	}
	if limitErr.RetryAfterSeconds() < 1 {
		t.Fatalf("RetryAfterSeconds = %d, want >= 1", limitErr.RetryAfterSeconds())
	}
}

func TestSlidingWindowRecoversAfterWindow(t *testing.T) {
	l := newTestLimiter(Config{
		Name:    "test",
		Window:  50 * time.Millisecond,
		Max:     1,
		Sliding: true,
	})
	ctx := context.Background()

	if err := l.Check(ctx); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	if err := l.Check(ctx); err == nil {
		t.Fatal("second request within the window must be rejected")
	}

	time.Sleep(60 * time.Millisecond)

	if err := l.Check(ctx); err != nil {
		t.Fatalf("request after the window should pass: %v", err)
	}
}

func TestFixedWindowCountsAndResets(t *testing.T) {
	l := newTestLimiter(Config{
		Name:    "fixed",
		Window:  50 * time.Millisecond,
		Max:     2,
		Sliding: false,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Check(ctx); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if err := l.Check(ctx); !errors.Is(err, types.ErrRateLimitExceeded) {
		t.Fatalf("got %v, want ErrRateLimitExceeded", err)
	}

	// Crossing the window boundary starts a fresh counter key.
	time.Sleep(60 * time.Millisecond)

	if err := l.Check(ctx); err != nil {
		t.Fatalf("request in the next window should pass: %v", err)
	}
}

func TestPruneOnReadKeepsStoredLogIntact(t *testing.T) {
	l := newTestLimiter(Config{
		Name:    "prune",
		Window:  300 * time.Millisecond,
		Max:     2,
		Sliding: true,
	})
	ctx := context.Background()

	if err := l.Check(ctx); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := l.Check(ctx); err != nil {
		t.Fatalf("second request rejected: %v", err)
	}

	// Let the first timestamp fall out of the window, then force a
	// read-only prune. Status must not leave duplicated trailing
	// timestamps behind in the persisted log.
	time.Sleep(150 * time.Millisecond)
	if _, err := l.Status(ctx); err != nil {
		t.Fatalf("Status: %v", err)
	}

	if err := l.Check(ctx); err != nil {
		t.Fatalf("within-limit request rejected after read-only Status: %v", err)
	}
}

func TestFixedWindowAllowsBurstAcrossBoundary(t *testing.T) {
	const max = 3
	window := 500 * time.Millisecond
	l := newTestLimiter(Config{
		Name:    "burst",
		Window:  window,
		Max:     max,
		Sliding: false,
	})
	ctx := context.Background()

	// Line up shortly before a window boundary so the two batches land in
	// adjacent windows.
	boundary := time.Now().Truncate(window).Add(window)
	if time.Until(boundary) < 200*time.Millisecond {
		boundary = boundary.Add(window)
	}
	time.Sleep(time.Until(boundary.Add(-150 * time.Millisecond)))

	for i := 0; i < max; i++ {
		if err := l.Check(ctx); err != nil {
			t.Fatalf("request %d before the boundary rejected: %v", i+1, err)
		}
	}

	time.Sleep(time.Until(boundary.Add(10 * time.Millisecond)))

	for i := 0; i < max; i++ {
		if err := l.Check(ctx); err != nil {
			t.Fatalf("request %d after the boundary rejected: %v", i+1, err)
		}
	}
}

func TestStatusDoesNotConsumeCapacity(t *testing.T) {
	l := newTestLimiter(Config{
		Name:    "status",
		Window:  time.Second,
		Max:     2,
		Sliding: true,
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := l.Status(ctx); err != nil {
			t.Fatalf("Status: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		if err := l.Check(ctx); err != nil {
			t.Fatalf("Status consumed capacity, request %d rejected: %v", i+1, err)
		}
	}

	status, err := l.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Limit != 2 {
		t.Fatalf("Limit = %d, want 2", status.Limit)
	}
	if status.Remaining != 0 {
		t.Fatalf("Remaining = %d, want 0", status.Remaining)
	}
	if status.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want > 0 when exhausted", status.RetryAfter)
	}
}

func TestResetClearsState(t *testing.T) {
	l := newTestLimiter(Config{
		Name:    "reset",
		Window:  time.Second,
		Max:     1,
		Sliding: true,
	})
	ctx := context.Background()

	if err := l.Check(ctx); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	if err := l.Check(ctx); err == nil {
		t.Fatal("second request must be rejected")
	}

	if err := l.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := l.Check(ctx); err != nil {
		t.Fatalf("request after Reset should pass: %v", err)
	}
}

func TestKeysDoNotContend(t *testing.T) {
	keyCtx := func(key string) context.Context {
		return context.WithValue(context.Background(), ctxKey{}, key)
	}

	l := newTestLimiter(Config{
		Name:    "keyed",
		Window:  time.Second,
		Max:     1,
		Sliding: true,
		KeyFunc: func(ctx context.Context) string {
			key, _ := ctx.Value(ctxKey{}).(string)
			return key
		},
	})

	if err := l.Check(keyCtx("alice")); err != nil {
		t.Fatalf("alice rejected: %v", err)
	}
	if err := l.Check(keyCtx("bob")); err != nil {
		t.Fatalf("bob must have independent capacity: %v", err)
	}
	if err := l.Check(keyCtx("alice")); err == nil {
		t.Fatal("alice over her own limit must be rejected")
	}
}

type ctxKey struct{}

func TestConcurrentChecksNeverOveradmit(t *testing.T) {
	const max = 10
	l := newTestLimiter(Config{
		Name:    "race",
		Window:  time.Second,
		Max:     max,
		Sliding: true,
	})

	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Check(context.Background()); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != max {
		t.Fatalf("admitted %d requests, want exactly %d", admitted, max)
	}
}

func TestSlidingWindowToleratesJSONRoundTrip(t *testing.T) {
	store := newMemStore()
	l := NewLimiter(store, logger.NewZapWrapper(zap.NewNop()), Config{
		Name:    "roundtrip",
		Window:  time.Second,
		Max:     2,
		Sliding: true,
		KeyFunc: func(context.Context) string { return "roundtrip" },
	})
	ctx := context.Background()

	if err := l.Check(ctx); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}

	// A shared store decodes the persisted log as []interface{} of float64,
	// the generic JSON shape.
	raw, found := store.Get("ratelimit:roundtrip:roundtrip:log")
	if !found {
		t.Fatal("persisted log not found in store")
	}
	log, ok := raw.([]int64)
	if !ok {
		t.Fatalf("stored log is %T, want []int64", raw)
	}
	decoded := make([]interface{}, len(log))
	for i, ts := range log {
		decoded[i] = float64(ts)
	}
	_ = store.Set("ratelimit:roundtrip:roundtrip:log", decoded, time.Second)

	if err := l.Check(ctx); err != nil {
		t.Fatalf("second request rejected: %v", err)
	}
	if err := l.Check(ctx); !errors.Is(err, types.ErrRateLimitExceeded) {
		t.Fatalf("got %v, want ErrRateLimitExceeded", err)
	}
}
