package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/skillatlas/taxonomy-service/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// LoadFromFile reads, env-expands, parses and validates the YAML config.
// ${VAR} references are expanded before parsing so credentials (O*NET basic
// auth) can stay out of the file.
func (l *Loader) LoadFromFile(configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file "+configPath)
	}

	config := Defaults()

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	applyDefaults(config)

	if err := l.validator.Struct(config); err != nil {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return config, nil
}

func Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "taxonomy-service",
		Version: "dev",
		Logger: &types.LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Cache: &types.CacheConfig{
			Type:            "memory",
			DefaultTTL:      time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		Metrics: &types.MetricsConfig{
			Enabled:   false,
			Namespace: "taxonomy_service",
		},
		Health: &types.HealthConfig{
			Enabled:  true,
			Schedule: "@every 5m",
		},
		Providers: &types.ProvidersConfig{
			ESCO: &types.ProviderConfig{
				Enabled:   true,
				BaseURL:   "https://ec.europa.eu/esco/api",
				Language:  "en",
				Timeout:   30 * time.Second,
				RateLimit: &types.RateLimitConfig{Window: time.Minute, Max: 60},
				Breaker: &types.BreakerConfig{
					Enabled:          true,
					FailureThreshold: 5,
					RecoveryTimeout:  60 * time.Second,
					HalfOpenRequests: 3,
				},
				SearchTTL: time.Hour,
				DetailTTL: 24 * time.Hour,
			},
			ONET: &types.ProviderConfig{
				Enabled:   true,
				BaseURL:   "https://services.onetcenter.org/ws",
				Language:  "en",
				Timeout:   30 * time.Second,
				RateLimit: &types.RateLimitConfig{Window: time.Minute, Max: 20},
				Breaker: &types.BreakerConfig{
					Enabled:          true,
					FailureThreshold: 5,
					RecoveryTimeout:  60 * time.Second,
					HalfOpenRequests: 3,
				},
				SearchTTL:         time.Hour,
				DetailTTL:         24 * time.Hour,
				ImportanceDivisor: 100,
			},
		},
		Enrichment: &types.EnrichmentConfig{
			BatchSize:              10,
			DefaultSkillLimit:      20,
			DefaultOccupationLimit: 10,
			MinRelevance:           0,
		},
	}
}

// applyDefaults fills sections the YAML omitted entirely. yaml.Unmarshal
// replaces nested pointers wholesale, so per-provider defaults are re-applied
// here rather than trusting the pre-seeded struct.
func applyDefaults(config *types.ServiceConfig) {
	defaults := Defaults()

	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Cache == nil {
		config.Cache = defaults.Cache
	}
	if config.Cache.DefaultTTL <= 0 {
		config.Cache.DefaultTTL = defaults.Cache.DefaultTTL
	}
	if config.Cache.CleanupInterval <= 0 {
		config.Cache.CleanupInterval = defaults.Cache.CleanupInterval
	}
	if config.Metrics == nil {
		config.Metrics = defaults.Metrics
	}
	if config.Health == nil {
		config.Health = defaults.Health
	}
	if config.Health.Schedule == "" {
		config.Health.Schedule = defaults.Health.Schedule
	}
	if config.Providers == nil {
		config.Providers = defaults.Providers
		return
	}
	if config.Providers.ESCO == nil {
		config.Providers.ESCO = defaults.Providers.ESCO
	} else {
		fillProviderDefaults(config.Providers.ESCO, defaults.Providers.ESCO)
	}
	if config.Providers.ONET == nil {
		config.Providers.ONET = defaults.Providers.ONET
	} else {
		fillProviderDefaults(config.Providers.ONET, defaults.Providers.ONET)
	}
	if config.Enrichment == nil {
		config.Enrichment = defaults.Enrichment
	}
	if config.Enrichment.BatchSize <= 0 {
		config.Enrichment.BatchSize = defaults.Enrichment.BatchSize
	}
	if config.Enrichment.DefaultSkillLimit <= 0 {
		config.Enrichment.DefaultSkillLimit = defaults.Enrichment.DefaultSkillLimit
	}
	if config.Enrichment.DefaultOccupationLimit <= 0 {
		config.Enrichment.DefaultOccupationLimit = defaults.Enrichment.DefaultOccupationLimit
	}
}

func fillProviderDefaults(cfg, def *types.ProviderConfig) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.Breaker == nil {
		cfg.Breaker = def.Breaker
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = def.SearchTTL
	}
	if cfg.DetailTTL <= 0 {
		cfg.DetailTTL = def.DetailTTL
	}
	if cfg.ImportanceDivisor <= 0 {
		cfg.ImportanceDivisor = def.ImportanceDivisor
	}
}
