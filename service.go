// Package taxonomy wires the skill-taxonomy enrichment service together:
// configuration, logging, cache, per-provider rate limiters and circuit
// breakers, the provider adapters, the enrichment orchestrator, and the
// provider health tracker. All collaborators are injected; nothing here is a
// process-wide singleton, so independent Service instances never share state.
package taxonomy

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skillatlas/taxonomy-service/breaker"
	"github.com/skillatlas/taxonomy-service/cache"
	"github.com/skillatlas/taxonomy-service/client"
	"github.com/skillatlas/taxonomy-service/config"
	"github.com/skillatlas/taxonomy-service/enrichment"
	"github.com/skillatlas/taxonomy-service/health"
	"github.com/skillatlas/taxonomy-service/logger"
	"github.com/skillatlas/taxonomy-service/metrics"
	"github.com/skillatlas/taxonomy-service/provider"
	"github.com/skillatlas/taxonomy-service/ratelimit"
	"github.com/skillatlas/taxonomy-service/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const shutdownTimeout = 30 * time.Second

type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	config     types.ConfigManager
	logger     types.Logger
	metrics    *metrics.PrometheusMetrics
	cache      types.CacheManager
	breakers   *breaker.Registry
	clients    []*client.HTTPClient
	providers  []types.TaxonomyProvider
	enrichment *enrichment.Service
	health     *health.Manager

	state atomic.Value
}

// NewService builds a fully wired service from a yaml config file.
func NewService(ctx context.Context, configPath string) (*Service, error) {
	configManager, err := config.NewConfigurationManager(configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to load configuration")
	}
	return NewServiceWithConfig(ctx, configManager)
}

// NewServiceWithConfig builds a service from an already-loaded configuration,
// the entry point for embedding and for tests.
func NewServiceWithConfig(ctx context.Context, configManager types.ConfigManager) (*Service, error) {
	serviceCtx, cancel := context.WithCancel(ctx)

	service := &Service{
		ctx:    serviceCtx,
		cancel: cancel,
		config: configManager,
	}
	service.state.Store(StateStopped)

	if err := service.buildComponents(); err != nil {
		cancel()
		return nil, err
	}

	return service, nil
}

func (s *Service) buildComponents() error {
	cfg := s.config.GetConfig()

	log, err := logger.NewDefaultLogger(cfg.Logger)
	if err != nil {
		return types.WrapError(err, "failed to build logger")
	}
	s.logger = log

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		s.metrics = metrics.NewPrometheusMetrics(log, cfg.Metrics)
	}

	var metricsManager types.MetricsManager
	if s.metrics != nil {
		metricsManager = s.metrics
	}

	cacheManager, err := cache.NewCacheManager(s.ctx, log, metricsManager, cfg.Cache)
	if err != nil {
		return types.WrapError(err, "failed to build cache manager")
	}
	s.cache = cacheManager

	s.breakers = breaker.NewRegistry(log, nil)

	if cfg.Providers != nil {
		if err := s.buildProvider(types.ProviderESCO, cfg.Providers.ESCO); err != nil {
			return err
		}
		if err := s.buildProvider(types.ProviderONET, cfg.Providers.ONET); err != nil {
			return err
		}
	}

	s.enrichment = enrichment.NewService(log, metricsManager, s.providers, cfg.Enrichment)
	s.health = health.NewManager(s.ctx, log, metricsManager, s.providers, cfg.Health)

	log.Info("Service components built",
		zap.String("name", cfg.Name),
		zap.String("version", cfg.Version),
		zap.Int("providers", len(s.providers)))

	return nil
}

// buildProvider assembles one adapter with its own rate limiter, circuit
// breaker, and HTTP client. All providers share the cache store; keys are
// provider-prefixed.
func (s *Service) buildProvider(name types.TaxonomyProviderName, cfg *types.ProviderConfig) error {
	if cfg == nil || !cfg.Enabled {
		s.logger.Info("Taxonomy provider disabled", zap.String("provider", string(name)))
		return nil
	}

	var limiter types.RateLimiter
	if cfg.RateLimit != nil {
		sliding := cfg.RateLimit.Sliding == nil || *cfg.RateLimit.Sliding
		limiter = ratelimit.NewLimiter(s.cache, s.logger, ratelimit.Config{
			Name:    string(name),
			Window:  cfg.RateLimit.Window,
			Max:     cfg.RateLimit.Max,
			Sliding: sliding,
			KeyFunc: func(context.Context) string { return string(name) },
		})
	} else {
		limiter = ratelimit.NewSlidingLimiter(s.cache, s.logger, string(name), time.Minute, 60)
	}

	if cfg.Breaker != nil {
		s.breakers.Configure(string(name), cfg.Breaker)
	}
	cb := s.breakers.GetBreaker(string(name))

	httpClient := client.NewHTTPClient(s.logger, string(name), &client.Config{
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	s.clients = append(s.clients, httpClient)

	var adapter types.TaxonomyProvider
	switch name {
	case types.ProviderESCO:
		adapter = provider.NewESCOProvider(s.logger, httpClient, limiter, cb, s.cache, cfg)
	case types.ProviderONET:
		adapter = provider.NewONETProvider(s.logger, httpClient, limiter, cb, s.cache, cfg)
	default:
		return types.Errorf(types.ErrProviderNotFound, "no adapter for provider %s", name)
	}

	s.providers = append(s.providers, adapter)
	return nil
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Service is already running")
		return types.ErrServiceAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	if err := s.cache.Start(); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start cache manager")
	}

	cfg := s.config.GetConfig()
	if cfg.Health == nil || cfg.Health.Enabled {
		// Provider reachability is advisory: startup proceeds even when every
		// provider is down.
		if err := s.health.Start(); err != nil {
			s.logger.Error("Failed to start health manager", zap.Error(err))
		}
	}

	s.logger.Info("Service started", zap.String("name", cfg.Name))
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("Service is not running")
		return types.ErrServiceNotRunning
	}

	defer func() {
		s.setState(StateStopped)
		s.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	g, _ := errgroup.WithContext(ctx)

	if s.health.IsRunning() {
		g.Go(func() error {
			if err := s.health.Stop(); err != nil {
				s.logger.Error("Failed to stop health manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := s.cache.Stop(); err != nil {
			s.logger.Error("Failed to stop cache manager", zap.Error(err))
			return err
		}
		return nil
	})

	err := g.Wait()

	for _, c := range s.clients {
		c.Close()
	}

	if err != nil {
		return types.WrapError(err, "errors during shutdown")
	}

	s.logger.Info("Service stopped")
	return nil
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

// Enrichment exposes the orchestrator, the primary API surface.
func (s *Service) Enrichment() types.EnrichmentManager {
	return s.enrichment
}

func (s *Service) Health() types.HealthManager {
	return s.health
}

// Metrics returns the prometheus manager, or nil when metrics are disabled.
func (s *Service) Metrics() *metrics.PrometheusMetrics {
	return s.metrics
}

func (s *Service) Cache() types.CacheManager {
	return s.cache
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(state State) {
	s.state.Store(state)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
