package breaker

import (
	"sync"

	"github.com/skillatlas/taxonomy-service/types"
)

// Registry hands out one breaker per upstream name, creating it on first use
// with the default config registered for that name (or the fallback config).
type Registry struct {
	logger   types.Logger
	fallback *types.BreakerConfig
	configs  map[string]*types.BreakerConfig
	breakers map[string]*CircuitBreaker
	mu       sync.Mutex
}

func NewRegistry(logger types.Logger, fallback *types.BreakerConfig) *Registry {
	if fallback == nil {
		fallback = &types.BreakerConfig{Enabled: false}
	}
	return &Registry{
		logger:   logger,
		fallback: fallback,
		configs:  make(map[string]*types.BreakerConfig),
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Configure sets the config used when the named breaker is first requested.
// It has no effect on an already-created breaker.
func (r *Registry) Configure(name string, config *types.BreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = config
}

func (r *Registry) GetBreaker(name string) types.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, exists := r.breakers[name]; exists {
		return cb
	}

	config := r.fallback
	if named, exists := r.configs[name]; exists {
		config = named
	}

	cb := NewCircuitBreaker(config, r.logger, name)
	r.breakers[name] = cb
	return cb
}
