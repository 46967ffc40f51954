package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
}

type ServiceConfig struct {
	Name       string            `yaml:"name" json:"name" validate:"required"`
	Version    string            `yaml:"version" json:"version"`
	Logger     *LoggerConfig     `yaml:"logger" json:"logger"`
	Cache      *CacheConfig      `yaml:"cache" json:"cache"`
	Metrics    *MetricsConfig    `yaml:"metrics" json:"metrics"`
	Health     *HealthConfig     `yaml:"health" json:"health"`
	Providers  *ProvidersConfig  `yaml:"providers" json:"providers" validate:"required"`
	Enrichment *EnrichmentConfig `yaml:"enrichment" json:"enrichment"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

type CacheConfig struct {
	Type            string        `yaml:"type" json:"type" validate:"omitempty,oneof=memory redis"`
	DefaultTTL      time.Duration `yaml:"default_ttl" json:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	Redis           *RedisConfig  `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Host         string        `yaml:"host" json:"host"`
	Port         int           `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix" json:"key_prefix"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Schedule is a cron spec for periodic provider connectivity re-checks,
	// e.g. "@every 5m".
	Schedule string `yaml:"schedule" json:"schedule"`
}

type ProvidersConfig struct {
	ESCO *ProviderConfig `yaml:"esco" json:"esco"`
	ONET *ProviderConfig `yaml:"onet" json:"onet"`
}

type ProviderConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	BaseURL  string        `yaml:"base_url" json:"base_url" validate:"required_if=Enabled true"`
	Language string        `yaml:"language" json:"language"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`

	// Username/Password carry basic-auth credentials (O*NET only). Values may
	// reference environment variables; the raw credential is never logged.
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	RateLimit *RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Breaker   *BreakerConfig   `yaml:"breaker" json:"breaker"`

	SearchTTL time.Duration `yaml:"search_ttl" json:"search_ttl"`
	DetailTTL time.Duration `yaml:"detail_ttl" json:"detail_ttl"`

	// ImportanceDivisor scales provider-native importance weights into [0,1]
	// before boosting relevance. Kept configurable; the conventional value
	// is 100.
	ImportanceDivisor float64 `yaml:"importance_divisor" json:"importance_divisor"`
}

type RateLimitConfig struct {
	Window time.Duration `yaml:"window" json:"window"`
	Max    int           `yaml:"max" json:"max"`
	// Sliding selects the sliding-window algorithm; nil means true. Fixed
	// windows are cheaper but admit up to 2x max across a window boundary.
	Sliding *bool `yaml:"sliding" json:"sliding"`
}

type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests"`
}

type EnrichmentConfig struct {
	BatchSize            int     `yaml:"batch_size" json:"batch_size" validate:"omitempty,min=1"`
	DefaultSkillLimit    int     `yaml:"default_skill_limit" json:"default_skill_limit"`
	DefaultOccupationLimit int   `yaml:"default_occupation_limit" json:"default_occupation_limit"`
	MinRelevance         float64 `yaml:"min_relevance" json:"min_relevance" validate:"min=0,max=1"`
}
