package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Constants for Redis cache configuration
const (
	defaultScanBatchSize = 100
	defaultPingTimeout   = 5 * time.Second
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient creates a client and verifies the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisStore implements shared.Cache using Redis
type RedisStore struct {
	client     *redis.Client
	ownsClient bool // true if we created the client and should close it
	logger     *zap.Logger
}

// RedisStoreOption is a functional option for configuring the store
type RedisStoreOption func(*RedisStore)

// WithRedisLogger sets the logger for the store
func WithRedisLogger(logger *zap.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// NewRedisStore connects to Redis and returns a store owning the client
func NewRedisStore(cfg RedisConfig, opts ...RedisStoreOption) (*RedisStore, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	store := NewRedisStoreWithClient(client, opts...)
	store.ownsClient = true
	return store, nil
}

// NewRedisStoreWithClient creates a store with an existing Redis client
// Note: The caller retains ownership of the client and is responsible for closing it
func NewRedisStoreWithClient(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	store := &RedisStore{
		client: client,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Get retrieves a value from Redis
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false, nil
	}
	if err != nil {
		s.logger.Error("Failed to get value from cache",
			zap.String("key", key),
			zap.Error(err))
		return nil, false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}
	return data, true, nil
}

// Set stores a value in Redis with a TTL
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Error("Failed to set value in cache",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to set %s in cache: %w", key, err)
	}
	s.logger.Debug("Cached value",
		zap.String("key", key),
		zap.Duration("ttl", ttl))
	return nil
}

// Delete removes keys from Redis
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Error("Failed to delete keys from cache",
			zap.Strings("keys", keys),
			zap.Error(err))
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	// Use SCAN to avoid blocking Redis with KEYS command
	var cursor uint64
	var deletedCount int64
	pattern := escapeGlob(prefix) + "*"

	for {
		var keys []string
		var err error
		keys, cursor, err = s.client.Scan(ctx, cursor, pattern, defaultScanBatchSize).Result()
		if err != nil {
			s.logger.Error("Failed to scan cache keys", zap.String("prefix", prefix), zap.Error(err))
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				s.logger.Error("Failed to delete cache keys", zap.String("prefix", prefix), zap.Error(err))
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deletedCount += deleted
		}

		if cursor == 0 {
			break
		}
	}

	s.logger.Debug("Invalidated cache prefix",
		zap.String("prefix", prefix),
		zap.Int64("deleted_count", deletedCount))
	return nil
}

// Close releases any resources held by the store
func (s *RedisStore) Close() error {
	// Only close client if we own it
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (s *RedisStore) GetClient() *redis.Client {
	return s.client
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Ensure RedisStore implements Cache
var _ shared.Cache = (*RedisStore)(nil)
