package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/skillatlas/taxonomy-service/types"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker protects one upstream from sustained load while it is
// failing. Closed admits everything; after FailureThreshold consecutive
// failures it opens and fails fast; after RecoveryTimeout it half-opens and
// closes again once HalfOpenRequests probes succeed.
type CircuitBreaker struct {
	config    *types.BreakerConfig
	logger    types.Logger
	name      string
	state     atomic.Value
	failures  atomic.Int32
	successes atomic.Int32
	lastFail  atomic.Int64
	mutex     sync.Mutex
}

func NewCircuitBreaker(config *types.BreakerConfig, logger types.Logger, name string) *CircuitBreaker {
	if config == nil {
		config = &types.BreakerConfig{Enabled: false}
	}

	cb := &CircuitBreaker{
		config: config,
		logger: logger,
		name:   name,
	}
	cb.state.Store(StateClosed)

	return cb
}

// Execute runs fn through the breaker. When the breaker is open it fails fast
// with types.ErrBreakerOpen without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.canExecute() {
		return types.Errorf(types.ErrBreakerOpen, "upstream: %s", cb.name)
	}

	err := fn()
	if err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) State() string {
	switch cb.getState() {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func (cb *CircuitBreaker) Reset() {
	if !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.transitionToClosed()

	cb.logger.Info("Circuit breaker manually reset",
		zap.String("upstream", cb.name))
}

func (cb *CircuitBreaker) canExecute() bool {
	if !cb.config.Enabled {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getState() {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(time.Unix(cb.lastFail.Load(), 0)) > cb.config.RecoveryTimeout {
			cb.transitionToHalfOpen()
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	if !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getState() {
	case StateClosed:
		cb.failures.Store(0)
	case StateHalfOpen:
		successes := cb.successes.Add(1)
		if successes >= int32(cb.config.HalfOpenRequests) {
			cb.transitionToClosed()
		}
	case StateOpen:
		cb.logger.Warn("Success recorded in open circuit breaker state",
			zap.String("upstream", cb.name))
	}
}

func (cb *CircuitBreaker) recordFailure() {
	if !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastFail.Store(time.Now().Unix())

	switch cb.getState() {
	case StateClosed:
		failures := cb.failures.Add(1)
		if failures >= int32(cb.config.FailureThreshold) {
			cb.transitionToOpen()
		}
	case StateHalfOpen:
		cb.transitionToOpen()
	case StateOpen:
	}
}

func (cb *CircuitBreaker) getState() State {
	return cb.state.Load().(State)
}

func (cb *CircuitBreaker) transitionToClosed() {
	cb.state.Store(StateClosed)
	cb.failures.Store(0)
	cb.successes.Store(0)
	cb.lastFail.Store(0)
	cb.logger.Info("Circuit breaker closed", zap.String("upstream", cb.name))
}

func (cb *CircuitBreaker) transitionToOpen() {
	cb.state.Store(StateOpen)
	cb.successes.Store(0)
	cb.logger.Warn("Circuit breaker opened",
		zap.String("upstream", cb.name),
		zap.Int32("failures", cb.failures.Load()),
		zap.Int("threshold", cb.config.FailureThreshold))
}

func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.state.Store(StateHalfOpen)
	cb.successes.Store(0)
	cb.logger.Info("Circuit breaker transitioned to half-open",
		zap.String("upstream", cb.name))
}
