package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultLocalTTL bounds how long an L1 entry may outlive a missed invalidation
const DefaultLocalTTL = 10 * time.Second

// TieredStore implements a two-tier caching strategy
// L1: Local in-memory cache (fast, but local to instance)
// L2: Redis cache (slower, but shared across instances)
// Deletes are fanned out to the other instances through the invalidator.
type TieredStore struct {
	l1          *MemoryStore
	l2          shared.Cache
	invalidator *RedisCacheInvalidator
	localTTL    time.Duration
	logger      *zap.Logger

	// Stats for monitoring
	l1Hits   int64
	l1Misses int64
	l2Hits   int64
	l2Misses int64
}

// TieredStoreOption is a functional option for configuring the store
type TieredStoreOption func(*TieredStore)

// WithLocalTTL caps the TTL of L1 entries
func WithLocalTTL(ttl time.Duration) TieredStoreOption {
	return func(c *TieredStore) {
		if ttl > 0 {
			c.localTTL = ttl
		}
	}
}

// WithTieredLogger sets the logger for the store
func WithTieredLogger(logger *zap.Logger) TieredStoreOption {
	return func(c *TieredStore) {
		c.logger = logger
	}
}

// NewTieredStore creates a new tiered cache. invalidator may be nil for a single instance.
func NewTieredStore(l1 *MemoryStore, l2 shared.Cache, invalidator *RedisCacheInvalidator, opts ...TieredStoreOption) *TieredStore {
	cache := &TieredStore{
		l1:          l1,
		l2:          l2,
		invalidator: invalidator,
		localTTL:    DefaultLocalTTL,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// StartInvalidationSubscription listens for invalidations from other instances.
// It blocks and should be run in a goroutine.
func (c *TieredStore) StartInvalidationSubscription(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Subscribe(ctx, c.handleInvalidationMessage)
}

// handleInvalidationMessage drops L1 entries another instance invalidated
func (c *TieredStore) handleInvalidationMessage(msg InvalidationMessage) {
	ctx := context.Background()

	switch msg.Action {
	case InvalidationActionDelete:
		_ = c.l1.Delete(ctx, msg.Keys...)
		c.logger.Debug("Invalidated L1 cache keys",
			zap.Strings("keys", msg.Keys))
	case InvalidationActionDeletePrefix:
		_ = c.l1.DeletePrefix(ctx, msg.Prefix)
		c.logger.Debug("Invalidated L1 cache prefix",
			zap.String("prefix", msg.Prefix))
	default:
		c.logger.Warn("Unknown cache invalidation action",
			zap.String("action", string(msg.Action)))
	}
}

// Get retrieves a value from cache (L1 -> L2)
func (c *TieredStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	// Try L1 first
	if value, ok, _ := c.l1.Get(ctx, key); ok {
		atomic.AddInt64(&c.l1Hits, 1)
		return value, true, nil
	}
	atomic.AddInt64(&c.l1Misses, 1)

	// Try L2
	value, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		atomic.AddInt64(&c.l2Misses, 1)
		return nil, false, nil
	}
	atomic.AddInt64(&c.l2Hits, 1)

	// Populate L1 cache
	_ = c.l1.Set(ctx, key, value, c.localTTL)
	return value, true, nil
}

// Set stores a value in L2 and L1
func (c *TieredStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = c.l1.Set(ctx, key, value, c.l1TTL(ttl))
	return nil
}

// Delete removes keys from both tiers and tells the other instances
func (c *TieredStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.l2.Delete(ctx, keys...); err != nil {
		return err
	}
	_ = c.l1.Delete(ctx, keys...)

	if c.invalidator != nil {
		if err := c.invalidator.PublishDelete(ctx, keys...); err != nil {
			c.logger.Warn("Failed to publish cache delete", zap.Strings("keys", keys), zap.Error(err))
		}
	}
	return nil
}

// DeletePrefix removes a key prefix from both tiers and tells the other instances
func (c *TieredStore) DeletePrefix(ctx context.Context, prefix string) error {
	if err := c.l2.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	_ = c.l1.DeletePrefix(ctx, prefix)

	if c.invalidator != nil {
		if err := c.invalidator.PublishDeletePrefix(ctx, prefix); err != nil {
			c.logger.Warn("Failed to publish cache prefix delete", zap.String("prefix", prefix), zap.Error(err))
		}
	}
	return nil
}

func (c *TieredStore) l1TTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < c.localTTL {
		return ttl
	}
	return c.localTTL
}

// TieredStats holds hit and miss counters per tier
type TieredStats struct {
	L1Hits   int64
	L1Misses int64
	L2Hits   int64
	L2Misses int64
	HitRatio float64
	Entries  int
}

// GetCacheStats returns statistics about cache hits and misses
func (c *TieredStore) GetCacheStats() TieredStats {
	stats := TieredStats{
		L1Hits:   atomic.LoadInt64(&c.l1Hits),
		L1Misses: atomic.LoadInt64(&c.l1Misses),
		L2Hits:   atomic.LoadInt64(&c.l2Hits),
		L2Misses: atomic.LoadInt64(&c.l2Misses),
		Entries:  c.l1.Count(),
	}

	totalHits := stats.L1Hits + stats.L2Hits
	if total := totalHits + stats.L2Misses; total > 0 {
		stats.HitRatio = float64(totalHits) / float64(total)
	}
	return stats
}

// Close releases any resources held by the cache
func (c *TieredStore) Close() error {
	var lastErr error

	if c.invalidator != nil {
		if err := c.invalidator.Close(); err != nil {
			lastErr = err
		}
	}

	if closer, ok := c.l2.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			lastErr = err
		}
	}

	if err := c.l1.Close(); err != nil {
		lastErr = err
	}

	return lastErr
}

// Ensure TieredStore implements Cache
var _ shared.Cache = (*TieredStore)(nil)
