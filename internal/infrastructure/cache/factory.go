package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is a cache that holds resources
type Store interface {
	shared.Cache
	Close() error
}

// Factory creates cache and idempotency stores based on configuration.
// Stores backed by Redis share one client owned by the factory.
type Factory struct {
	redisConfig           config.RedisConfig
	cacheConfig           config.CacheConfig
	logger                *zap.Logger
	allowInMemoryFallback bool

	mu     sync.Mutex
	client *redis.Client
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores when Redis is unavailable
// Default is true (allow fallback)
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(redisCfg config.RedisConfig, cacheCfg config.CacheConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           redisCfg,
		cacheConfig:           cacheCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true, // Default to allowing fallback
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// redisClient connects on first use and reuses the client afterwards
func (f *Factory) redisClient() (*redis.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil {
		return f.client, nil
	}
	if !f.redisConfig.Enabled {
		return nil, errors.New("redis is disabled")
	}

	client, err := NewRedisClient(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, err
	}
	f.client = client
	return client, nil
}

func (f *Factory) keyPrefix() string {
	if f.cacheConfig.KeyPrefix == "" {
		return DefaultKeyPrefix
	}
	return f.cacheConfig.KeyPrefix
}

// CreateCache creates the read cache. With Redis available and a local TTL
// configured it returns a tiered store whose invalidation subscription runs
// until ctx is done.
func (f *Factory) CreateCache(ctx context.Context) (Store, error) {
	if !f.cacheConfig.Enabled {
		f.logger.Info("read cache disabled")
		return NoopStore{}, nil
	}

	client, err := f.redisClient()
	if err != nil {
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("Redis required for cache but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory cache. "+
			"Instances will not share cached reads.",
			zap.Error(err),
		)
		return NewMemoryStore(WithMemoryLogger(f.logger)), nil
	}

	l2 := NewRedisStoreWithClient(client, WithRedisLogger(f.logger))
	if f.cacheConfig.LocalTTL <= 0 {
		f.logger.Info("using Redis cache")
		return l2, nil
	}

	invalidator := NewRedisCacheInvalidator(client,
		WithInvalidatorChannel(f.keyPrefix()+":cache:invalidate"),
		WithInvalidatorLogger(f.logger),
	)
	tiered := NewTieredStore(NewMemoryStore(WithMemoryLogger(f.logger)), l2, invalidator,
		WithLocalTTL(f.cacheConfig.LocalTTL),
		WithTieredLogger(f.logger),
	)
	go func() {
		if err := tiered.StartInvalidationSubscription(ctx); err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Error("cache invalidation subscription ended", zap.Error(err))
		}
	}()

	f.logger.Info("using tiered cache",
		zap.Duration("local_ttl", f.cacheConfig.LocalTTL))
	return tiered, nil
}

// CreateIdempotencyStore tries Redis first and falls back to in-memory if
// Redis is not available and the fallback is allowed
func (f *Factory) CreateIdempotencyStore() (shared.IdempotencyStore, error) {
	client, err := f.redisClient()
	if err == nil {
		f.logger.Info("using Redis idempotency store")
		return NewRedisIdempotencyStore(client, NewKeys(f.keyPrefix())), nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for idempotency but unavailable: %w", err)
	}

	// A second worker would not see these keys and redo every projection write
	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(WithMemoryLogger(f.logger)), nil
}

// Close closes the shared Redis client
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}
