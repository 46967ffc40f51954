package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skillatlas/taxonomy-service/types"
	"github.com/skillatlas/taxonomy-service/utils"
)

// RedisCache is the shared-store implementation of types.KeyValueStore for
// multi-instance deployments. Values are stored as a sonic-encoded envelope
// so arbitrary cached shapes round-trip; TTL is delegated to Redis expiry.
type RedisCache struct {
	ctx       context.Context
	logger    types.Logger
	config    *types.RedisConfig
	client    *redis.Client
	keyPrefix string
	running   int32
}

type redisEnvelope struct {
	Value     interface{} `json:"value"`
	CreatedAt time.Time   `json:"created_at"`
}

func NewRedisCache(ctx context.Context, logger types.Logger, config *types.RedisConfig) (*RedisCache, error) {
	redisConfig := &types.RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "taxonomy",
	}
	if config != nil {
		if config.Host != "" {
			redisConfig.Host = config.Host
		}
		if config.Port > 0 {
			redisConfig.Port = config.Port
		}
		redisConfig.Password = config.Password
		redisConfig.DB = config.DB
		if config.PoolSize > 0 {
			redisConfig.PoolSize = config.PoolSize
		}
		if config.DialTimeout > 0 {
			redisConfig.DialTimeout = config.DialTimeout
		}
		if config.ReadTimeout > 0 {
			redisConfig.ReadTimeout = config.ReadTimeout
		}
		if config.WriteTimeout > 0 {
			redisConfig.WriteTimeout = config.WriteTimeout
		}
		if config.KeyPrefix != "" {
			redisConfig.KeyPrefix = config.KeyPrefix
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	cache := &RedisCache{
		ctx:       ctx,
		logger:    logger,
		config:    redisConfig,
		client:    client,
		keyPrefix: redisConfig.KeyPrefix,
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisConfig.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, types.Errorf(types.ErrCacheConnectionFailed, "%v", err)
	}

	return cache, nil
}

func (r *RedisCache) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	result, err := r.client.Get(r.ctx, r.buildFullKey(key)).Bytes()
	if err != nil {
		if !types.IsError(err, redis.Nil) {
			r.logger.Error("Failed to get cache entry",
				zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var envelope redisEnvelope
	if err := utils.Unmarshal(result, &envelope); err != nil {
		r.logger.Error("Failed to unmarshal cache entry",
			zap.String("key", key), zap.Error(err))
		r.client.Del(r.ctx, r.buildFullKey(key))
		return nil, false
	}

	return envelope.Value, true
}

func (r *RedisCache) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	data, err := utils.Marshal(&redisEnvelope{Value: value, CreatedAt: time.Now()})
	if err != nil {
		return types.WrapError(err, "failed to marshal cache entry")
	}

	if err := r.client.Set(r.ctx, r.buildFullKey(key), data, ttl).Err(); err != nil {
		return types.WrapError(err, "failed to set cache entry")
	}

	return nil
}

func (r *RedisCache) Delete(key string) error {
	return r.client.Del(r.ctx, r.buildFullKey(key)).Err()
}

func (r *RedisCache) Clear() error {
	iter := r.client.Scan(r.ctx, 0, r.keyPrefix+":*", 0).Iterator()
	for iter.Next(r.ctx) {
		if err := r.client.Del(r.ctx, iter.Val()).Err(); err != nil {
			return types.WrapError(err, "failed to delete cache entry")
		}
	}
	return iter.Err()
}

func (r *RedisCache) Size() int {
	var size int
	iter := r.client.Scan(r.ctx, 0, r.keyPrefix+":*", 0).Iterator()
	for iter.Next(r.ctx) {
		size++
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("Failed to scan cache keys", zap.Error(err))
	}
	return size
}

func (r *RedisCache) Start() error {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return types.ErrServiceAlreadyRunning
	}
	r.logger.Info("Redis cache started",
		zap.String("addr", fmt.Sprintf("%s:%d", r.config.Host, r.config.Port)),
		zap.String("key_prefix", r.keyPrefix))
	return nil
}

func (r *RedisCache) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.running, 1, 0) {
		return types.ErrServiceNotRunning
	}
	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}
	r.logger.Info("Redis cache stopped")
	return nil
}

func (r *RedisCache) IsRunning() bool {
	return atomic.LoadInt32(&r.running) == 1
}

func (r *RedisCache) buildFullKey(key string) string {
	return r.keyPrefix + ":" + key
}
