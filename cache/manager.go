package cache

import (
	"context"
	"time"

	"github.com/skillatlas/taxonomy-service/types"
)

func NewCacheManager(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.CacheConfig) (types.CacheManager, error) {
	cacheType := "memory"
	if config != nil && config.Type != "" {
		cacheType = config.Type
	}

	var impl types.CacheManager
	var err error

	switch cacheType {
	case "memory":
		impl, err = NewMemoryCache(ctx, logger, config)
	case "redis":
		impl, err = NewRedisCache(ctx, logger, config.Redis)
	default:
		return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", cacheType)
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedCacheManager(metrics, impl), nil
}

type instrumentedCacheManager struct {
	impl    types.CacheManager
	metrics types.MetricsManager
}

func newInstrumentedCacheManager(metrics types.MetricsManager, impl types.CacheManager) types.CacheManager {
	return &instrumentedCacheManager{
		impl:    impl,
		metrics: metrics,
	}
}

func (icm *instrumentedCacheManager) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, exists := icm.impl.Get(key)

	result := "miss"
	if exists {
		result = "hit"
	}

	icm.recordMetric("get", result, time.Since(start))
	return value, exists
}

func (icm *instrumentedCacheManager) Set(key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := icm.impl.Set(key, value, ttl)

	result := "success"
	if err != nil {
		result = "error"
	}

	icm.recordMetric("set", result, time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Delete(key string) error {
	start := time.Now()
	err := icm.impl.Delete(key)

	result := "success"
	if err != nil {
		result = "error"
	}

	icm.recordMetric("delete", result, time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Clear() error {
	return icm.impl.Clear()
}

func (icm *instrumentedCacheManager) Size() int {
	return icm.impl.Size()
}

func (icm *instrumentedCacheManager) Start() error {
	return icm.impl.Start()
}

func (icm *instrumentedCacheManager) Stop() error {
	return icm.impl.Stop()
}

func (icm *instrumentedCacheManager) IsRunning() bool {
	return icm.impl.IsRunning()
}

func (icm *instrumentedCacheManager) recordMetric(operation, result string, duration time.Duration) {
	opCounter := icm.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := icm.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}
