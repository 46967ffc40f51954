package types

import (
	"time"
)

// KeyValueStore is the capability interface both the cache consumers and the
// rate limiter depend on. The in-memory implementation serves a single
// instance; a Redis-backed implementation serves deployments where several
// instances share one logical cache or limit namespace. Consumers must never
// depend on the concrete store.
type KeyValueStore interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) error
	Clear() error
	Size() int
}

type CacheManager interface {
	LifecycleManager
	KeyValueStore
}

// CacheEntry is owned exclusively by the cache. Values handed to callers are
// the stored value itself for the in-memory store and a decoded copy for the
// Redis store; callers must treat them as read-only.
type CacheEntry struct {
	Key       string        `json:"key"`
	Value     interface{}   `json:"value"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}
