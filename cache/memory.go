package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/skillatlas/taxonomy-service/types"
)

type MemoryState int32

const (
	MemoryStateStopped MemoryState = iota
	MemoryStateStarting
	MemoryStateRunning
	MemoryStateStopping
)

const (
	MaxTTL     = 24 * time.Hour
	DefaultTTL = 1 * time.Hour

	defaultCleanupInterval = 5 * time.Minute
)

// MemoryCache is an in-memory, single-process TTL store. It has no eviction
// policy beyond TTL; callers control TTLs tightly. Deployments with several
// instances sharing a logical cache or rate-limit namespace must use the
// Redis-backed store instead; both satisfy types.KeyValueStore.
type MemoryCache struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	cleanupInterval time.Duration
	defaultTTL      time.Duration
	data            map[string]*types.CacheEntry
	hits            uint64
	misses          uint64
	mu              sync.RWMutex
	state           atomic.Value
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

func NewMemoryCache(ctx context.Context, logger types.Logger, config *types.CacheConfig) (*MemoryCache, error) {
	cleanupInterval := defaultCleanupInterval
	defaultTTL := DefaultTTL

	if config != nil {
		if config.CleanupInterval > 0 {
			cleanupInterval = config.CleanupInterval
		}
		if config.DefaultTTL > 0 {
			defaultTTL = config.DefaultTTL
		}
	}

	cacheCtx, cancel := context.WithCancel(ctx)

	cache := &MemoryCache{
		ctx:             cacheCtx,
		cancel:          cancel,
		logger:          logger,
		cleanupInterval: cleanupInterval,
		defaultTTL:      defaultTTL,
		data:            make(map[string]*types.CacheEntry),
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	cache.state.Store(MemoryStateStopped)

	return cache, nil
}

// Get returns absent both for unset keys and for entries whose expiry has
// passed; expired entries are evicted as a side effect of the read.
func (m *MemoryCache) Get(key string) (interface{}, bool) {
	now := time.Now()

	m.mu.RLock()
	entry, exists := m.data[key]
	if !exists {
		m.mu.RUnlock()
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	if !entry.ExpiresAt.IsZero() && now.After(entry.ExpiresAt) {
		m.mu.RUnlock()
		m.mu.Lock()
		if entry, exists := m.data[key]; exists && now.After(entry.ExpiresAt) {
			delete(m.data, key)
		}
		m.mu.Unlock()

		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	value := entry.Value
	m.mu.RUnlock()

	atomic.AddUint64(&m.hits, 1)

	return value, true
}

func (m *MemoryCache) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		m.logger.Error("Attempted to set cache entry with empty key")
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := time.Now()
	entry := &types.CacheEntry{
		Key:       key,
		Value:     value,
		TTL:       ttl,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	m.mu.Lock()
	m.data[key] = entry
	m.mu.Unlock()

	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Clear() error {
	m.mu.Lock()
	m.data = make(map[string]*types.CacheEntry)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryCache) Start() error {
	if !m.transitionState(MemoryStateStopped, MemoryStateStarting) {
		m.logger.Warn("Memory cache is already running")
		return types.ErrServiceAlreadyRunning
	}

	defer func() {
		if m.getState() == MemoryStateStarting {
			m.setState(MemoryStateRunning)
		}
	}()

	go m.startCleanupRoutine()

	m.logger.Info("Memory cache started",
		zap.Duration("cleanup_interval", m.cleanupInterval))
	return nil
}

func (m *MemoryCache) Stop() error {
	if !m.transitionState(MemoryStateRunning, MemoryStateStopping) {
		m.logger.Warn("Memory cache is not running")
		return types.ErrServiceNotRunning
	}

	defer func() {
		m.setState(MemoryStateStopped)
	}()

	m.cancel()

	select {
	case m.stopCleanup <- struct{}{}:
	case <-time.After(time.Second):
	}

	select {
	case <-m.cleanupDone:
		m.logger.Debug("Cleanup routine stopped")
	case <-time.After(5 * time.Second):
		m.logger.Warn("Cleanup routine stop timeout")
	}

	m.mu.Lock()
	entriesCount := len(m.data)
	m.data = make(map[string]*types.CacheEntry)
	m.mu.Unlock()

	m.logger.Info("Memory cache stopped",
		zap.Int("cleared_entries", entriesCount))

	return nil
}

func (m *MemoryCache) IsRunning() bool {
	return m.getState() == MemoryStateRunning
}

func (m *MemoryCache) getState() MemoryState {
	return m.state.Load().(MemoryState)
}

func (m *MemoryCache) setState(newState MemoryState) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryCache) transitionState(from, to MemoryState) bool {
	return m.state.CompareAndSwap(from, to)
}

// cleanup actively evicts expired entries so keys that are never re-read do
// not grow memory without bound.
func (m *MemoryCache) cleanup() {
	now := time.Now()

	m.mu.Lock()

	var expired []string
	for key, entry := range m.data {
		if !entry.ExpiresAt.IsZero() && now.After(entry.ExpiresAt) {
			expired = append(expired, key)
		}
	}

	for _, key := range expired {
		delete(m.data, key)
	}

	m.mu.Unlock()

	if len(expired) > 0 {
		m.logger.Debug("Cleanup completed", zap.Int("expired_entries", len(expired)))
	}
}

func (m *MemoryCache) startCleanupRoutine() {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Debug("Cleanup routine stopped by context")
			return
		case <-m.stopCleanup:
			m.logger.Debug("Cleanup routine stopped by signal")
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}
