package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skillatlas/taxonomy-service/types"
)

const lockStripes = 64

// Config binds one Limiter to one logical limit (calls to a provider, calls
// by a user for an operation, and so on). Immutable after construction.
type Config struct {
	// Name prefixes every store key so limiters sharing a store do not collide.
	Name   string
	Window time.Duration
	Max    int
	// Sliding selects the continuously-sliding admission boundary. The fixed
	// window alternative is cheaper but admits up to 2x Max across a window
	// boundary.
	Sliding bool
	// KeyFunc derives the limiting key from the call context. Two different
	// keys never contend.
	KeyFunc func(ctx context.Context) string
	// Skip, when set and true for a context, bypasses the limiter entirely.
	Skip func(ctx context.Context) bool
	// OnLimitReached runs as a side effect whenever a request is rejected.
	OnLimitReached func(key string)
}

// Limiter implements per-key request admission on top of a KeyValueStore.
// The sliding-window check is a classic check-then-act sequence (read log,
// prune, compare, append, write), so every key's sequence runs under a striped
// mutex; this is a correctness requirement on multi-goroutine runtimes, not
// an optimization.
type Limiter struct {
	store  types.KeyValueStore
	logger types.Logger
	config Config
	locks  [lockStripes]sync.Mutex
}

func NewLimiter(store types.KeyValueStore, logger types.Logger, config Config) *Limiter {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Max <= 0 {
		config.Max = 60
	}
	if config.KeyFunc == nil {
		config.KeyFunc = func(context.Context) string { return "default" }
	}

	return &Limiter{
		store:  store,
		logger: logger,
		config: config,
	}
}

// NewSlidingLimiter builds the default (sliding window) limiter for one fixed
// key, the shape provider adapters use.
func NewSlidingLimiter(store types.KeyValueStore, logger types.Logger, name string, window time.Duration, max int) *Limiter {
	return NewLimiter(store, logger, Config{
		Name:    name,
		Window:  window,
		Max:     max,
		Sliding: true,
		KeyFunc: func(context.Context) string { return name },
	})
}

// Check admits the request or fails with *types.RateLimitError.
func (l *Limiter) Check(ctx context.Context) error {
	if l.config.Skip != nil && l.config.Skip(ctx) {
		return nil
	}

	key := l.config.KeyFunc(ctx)

	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	var err error
	if l.config.Sliding {
		err = l.checkSliding(key, true)
	} else {
		err = l.checkFixed(key, true)
	}

	if err != nil {
		if l.config.OnLimitReached != nil {
			l.config.OnLimitReached(key)
		}
		if l.logger != nil {
			l.logger.Debug("Rate limit exceeded",
				zap.String("key", key),
				zap.Int("limit", l.config.Max),
				zap.Duration("window", l.config.Window))
		}
	}

	return err
}

// Status mirrors the check logic without consuming capacity.
func (l *Limiter) Status(ctx context.Context) (*types.RateLimitStatus, error) {
	key := l.config.KeyFunc(ctx)

	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()

	if l.config.Sliding {
		log := l.prunedLog(key, now)
		status := &types.RateLimitStatus{
			Limit:     l.config.Max,
			Remaining: l.config.Max - len(log),
			ResetTime: now.Add(l.config.Window),
		}
		if len(log) > 0 {
			status.ResetTime = time.Unix(0, log[0]).Add(l.config.Window)
		}
		if status.Remaining <= 0 {
			status.Remaining = 0
			status.RetryAfter = status.ResetTime.Sub(now)
		}
		return status, nil
	}

	windowStart := now.Truncate(l.config.Window)
	count := l.counter(l.counterKey(key, windowStart))
	status := &types.RateLimitStatus{
		Limit:     l.config.Max,
		Remaining: l.config.Max - int(count),
		ResetTime: windowStart.Add(l.config.Window),
	}
	if status.Remaining <= 0 {
		status.Remaining = 0
		status.RetryAfter = status.ResetTime.Sub(now)
	}
	return status, nil
}

// Reset clears the primary key and, for sliding mode, the companion
// timestamp-log key.
func (l *Limiter) Reset(ctx context.Context) error {
	key := l.config.KeyFunc(ctx)

	lock := l.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := l.store.Delete(l.primaryKey(key)); err != nil {
		return err
	}
	if err := l.store.Delete(l.logKey(key)); err != nil {
		return err
	}

	windowStart := time.Now().Truncate(l.config.Window)
	return l.store.Delete(l.counterKey(key, windowStart))
}

// checkSliding prunes the timestamp log to [now-window, now] and rejects when
// the pruned log is already full, with retryAfter measured from the oldest
// surviving timestamp.
func (l *Limiter) checkSliding(key string, mutate bool) error {
	now := time.Now()
	log := l.prunedLog(key, now)

	if len(log) >= l.config.Max {
		return &types.RateLimitError{
			Key:        key,
			Limit:      l.config.Max,
			Window:     l.config.Window,
			RetryAfter: time.Unix(0, log[0]).Add(l.config.Window).Sub(now),
		}
	}

	if mutate {
		log = append(log, now.UnixNano())
		if err := l.store.Set(l.logKey(key), log, l.config.Window); err != nil {
			return types.WrapError(err, "failed to persist rate limit log")
		}
	}

	return nil
}

// checkFixed counts per (key, windowStart); a new window boundary implies a
// fresh counter key, so the reset is implicit.
func (l *Limiter) checkFixed(key string, mutate bool) error {
	now := time.Now()
	windowStart := now.Truncate(l.config.Window)
	counterKey := l.counterKey(key, windowStart)

	count := l.counter(counterKey)
	if count >= int64(l.config.Max) {
		return &types.RateLimitError{
			Key:        key,
			Limit:      l.config.Max,
			Window:     l.config.Window,
			RetryAfter: windowStart.Add(l.config.Window).Sub(now),
		}
	}

	if mutate {
		if err := l.store.Set(counterKey, count+1, l.config.Window); err != nil {
			return types.WrapError(err, "failed to persist rate limit counter")
		}
	}

	return nil
}

func (l *Limiter) prunedLog(key string, now time.Time) []int64 {
	raw, found := l.store.Get(l.logKey(key))
	if !found {
		return nil
	}

	cutoff := now.Add(-l.config.Window).UnixNano()

	// Prune into a fresh slice: a memory-backed store hands the stored slice
	// back by reference, and compacting it in place would corrupt the
	// persisted log for callers that never write back (rejections, Status).
	log := toTimestamps(raw)
	pruned := make([]int64, 0, len(log))
	for _, ts := range log {
		if ts >= cutoff {
			pruned = append(pruned, ts)
		}
	}
	return pruned
}

func (l *Limiter) counter(counterKey string) int64 {
	raw, found := l.store.Get(counterKey)
	if !found {
		return 0
	}
	return toInt64(raw)
}

func (l *Limiter) primaryKey(key string) string {
	return "ratelimit:" + l.config.Name + ":" + key
}

func (l *Limiter) logKey(key string) string {
	return l.primaryKey(key) + ":log"
}

func (l *Limiter) counterKey(key string, windowStart time.Time) string {
	return l.primaryKey(key) + ":" + windowStart.UTC().Format(time.RFC3339Nano)
}

func (l *Limiter) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.locks[h.Sum32()&(lockStripes-1)]
}

// toTimestamps tolerates the JSON round-trip of the shared store: an in-memory
// store hands back []int64 unchanged, a Redis-backed store hands back the
// decoded []interface{} of numbers.
func toTimestamps(raw interface{}) []int64 {
	switch v := raw.(type) {
	case []int64:
		return v
	case []interface{}:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			out = append(out, toInt64(item))
		}
		return out
	default:
		return nil
	}
}

func toInt64(raw interface{}) int64 {
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
