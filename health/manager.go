// Package health tracks taxonomy provider reachability. Providers are
// degradable dependencies, so an unreachable provider is logged and reflected
// in Status but never fails startup.
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skillatlas/taxonomy-service/logger"
	"github.com/skillatlas/taxonomy-service/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	defaultSchedule     = "@every 5m"
	defaultCheckTimeout = 5 * time.Second
)

type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	logger       types.Logger
	metrics      types.MetricsManager
	providers    []types.TaxonomyProvider
	config       *types.HealthConfig
	cron         *cron.Cron
	results      map[string]types.ProviderHealth
	mu           sync.RWMutex
	state        atomic.Value
	checkTimeout time.Duration
}

func NewManager(ctx context.Context, logger types.Logger, metrics types.MetricsManager, providers []types.TaxonomyProvider, config *types.HealthConfig) *Manager {
	managerCtx, cancel := context.WithCancel(ctx)

	if config == nil {
		config = &types.HealthConfig{Enabled: true}
	}

	manager := &Manager{
		ctx:          managerCtx,
		cancel:       cancel,
		logger:       logger,
		metrics:      metrics,
		providers:    providers,
		config:       config,
		results:      make(map[string]types.ProviderHealth),
		checkTimeout: defaultCheckTimeout,
	}

	manager.state.Store(StateStopped)

	return manager
}

// Start runs one immediate connectivity sweep and schedules periodic
// re-checks. Unreachable providers are warnings, not errors.
func (hm *Manager) Start() error {
	if !hm.transitionState(StateStopped, StateStarting) {
		hm.logger.Warn("Health manager is already running")
		return types.ErrServiceAlreadyRunning
	}

	defer func() {
		if hm.getState() == StateStarting {
			hm.setState(StateRunning)
		}
	}()

	hm.Check(hm.ctx)

	schedule := hm.config.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}

	hm.cron = cron.New()
	if _, err := hm.cron.AddFunc(schedule, func() {
		hm.Check(hm.ctx)
	}); err != nil {
		hm.setState(StateStopped)
		return types.WrapError(err, "invalid health check schedule")
	}
	hm.cron.Start()

	hm.logger.Info("Health manager started",
		zap.String("schedule", schedule),
		zap.Int("providers", len(hm.providers)))
	return nil
}

func (hm *Manager) Stop() error {
	if !hm.transitionState(StateRunning, StateStopping) {
		hm.logger.Warn("Health manager is not running")
		return types.ErrServiceNotRunning
	}

	defer func() {
		hm.setState(StateStopped)
		hm.cancel()
	}()

	if hm.cron != nil {
		stopCtx := hm.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(hm.checkTimeout):
			hm.logger.Warn("Timed out waiting for in-flight health checks")
		}
	}

	hm.logger.Info("Health manager stopped")
	return nil
}

func (hm *Manager) IsRunning() bool {
	return hm.getState() == StateRunning
}

// Check pings every provider concurrently and replaces the stored snapshot.
func (hm *Manager) Check(ctx context.Context) map[string]types.ProviderHealth {
	checkCtx, cancel := context.WithTimeout(ctx, hm.checkTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(checkCtx)
	results := make(map[string]types.ProviderHealth, len(hm.providers))
	var resultMu sync.Mutex

	for _, p := range hm.providers {
		p := p
		g.Go(func() error {
			result := hm.checkProvider(gCtx, p)

			resultMu.Lock()
			results[string(p.Name())] = result
			resultMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	hm.mu.Lock()
	hm.results = results
	hm.mu.Unlock()

	return hm.Status()
}

func (hm *Manager) checkProvider(ctx context.Context, p types.TaxonomyProvider) types.ProviderHealth {
	result := types.ProviderHealth{
		Provider:  p.Name(),
		CheckedAt: time.Now(),
	}

	if err := p.Ping(ctx); err != nil {
		result.Error = err.Error()
		hm.logger.Warn("Taxonomy provider unreachable",
			zap.String("provider", string(p.Name())),
			logger.Cause(err))
	} else {
		result.Reachable = true
	}

	hm.recordResult(result)

	return result
}

func (hm *Manager) Status() map[string]types.ProviderHealth {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := make(map[string]types.ProviderHealth, len(hm.results))
	for name, result := range hm.results {
		status[name] = result
	}
	return status
}

func (hm *Manager) recordResult(result types.ProviderHealth) {
	if hm.metrics == nil {
		return
	}

	reachable := 0.0
	if result.Reachable {
		reachable = 1.0
	}
	hm.metrics.Gauge("provider_reachable", map[string]string{
		"provider": string(result.Provider),
	}).Set(reachable)
	hm.metrics.Counter("provider_health_checks_total", map[string]string{
		"provider": string(result.Provider),
	}).Inc()
}

func (hm *Manager) getState() State {
	return hm.state.Load().(State)
}

func (hm *Manager) setState(state State) {
	hm.state.Store(state)
}

func (hm *Manager) transitionState(from, to State) bool {
	return hm.state.CompareAndSwap(from, to)
}
