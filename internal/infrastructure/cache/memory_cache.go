package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// Constants for in-memory cache configuration
const (
	defaultCleanupInterval = 30 * time.Second
)

// MemoryStore implements shared.Cache using in-memory storage.
// It serves single-instance deployments and is the L1 tier in front of Redis.
type MemoryStore struct {
	entries         sync.Map // map[string]*cacheEntry
	logger          *zap.Logger
	cleanupInterval time.Duration
	stopCh          chan struct{} // Channel to stop the cleanup goroutine
	stopped         int32         // Atomic flag to track if cache is stopped

	// Stats for monitoring
	hits   int64
	misses int64
}

// cacheEntry wraps a cached value with expiration time
type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry) isExpired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// MemoryStoreOption is a functional option for configuring the store
type MemoryStoreOption func(*MemoryStore)

// WithMemoryLogger sets the logger for the store
func WithMemoryLogger(logger *zap.Logger) MemoryStoreOption {
	return func(c *MemoryStore) {
		c.logger = logger
	}
}

// WithCleanupInterval sets how often expired entries are evicted
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *MemoryStore) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// NewMemoryStore creates a new in-memory cache store
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cache := &MemoryStore{
		logger:          zap.NewNop(),
		cleanupInterval: defaultCleanupInterval,
		stopCh:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cache)
	}

	// Start background cleanup goroutine
	go cache.cleanupExpired()

	return cache
}

// Get retrieves a value from cache
func (c *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if value, ok := c.entries.Load(key); ok {
		entry := value.(*cacheEntry)
		if !entry.isExpired() {
			atomic.AddInt64(&c.hits, 1)
			return entry.value, true, nil
		}
		// Expired, remove from cache
		c.entries.Delete(key)
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, false, nil
}

// Set stores a value in cache. A zero TTL never expires.
func (c *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := &cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.entries.Store(key, entry)
	return nil
}

// SetIfAbsent stores value unless a live entry exists and reports whether it
// did. An expired entry counts as absent.
func (c *MemoryStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	entry := &cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	for {
		current, loaded := c.entries.LoadOrStore(key, entry)
		if !loaded {
			return true, nil
		}
		if !current.(*cacheEntry).isExpired() {
			return false, nil
		}
		// Replace the expired entry unless another writer got there first
		if c.entries.CompareAndSwap(key, current, entry) {
			return true, nil
		}
	}
}

// Delete removes keys from cache
func (c *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		c.entries.Delete(key)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix
func (c *MemoryStore) DeletePrefix(ctx context.Context, prefix string) error {
	var removed int
	c.entries.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.entries.Delete(key)
			removed++
		}
		return true
	})
	c.logger.Debug("Invalidated local cache prefix",
		zap.String("prefix", prefix),
		zap.Int("removed", removed))
	return nil
}

// Close stops the cleanup goroutine
func (c *MemoryStore) Close() error {
	// Only close once
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// GetStats returns cache statistics
func (c *MemoryStore) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// ResetStats resets the cache statistics
func (c *MemoryStore) ResetStats() {
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Count returns the number of entries in the cache
func (c *MemoryStore) Count() int {
	var n int
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// cleanupExpired periodically removes expired entries from the cache
func (c *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logger.Error("Panic in cache cleanup",
							zap.Any("panic", r))
					}
				}()
				c.doCleanup()
			}()
		}
	}
}

// doCleanup removes expired entries
func (c *MemoryStore) doCleanup() {
	var removed int

	c.entries.Range(func(key, value any) bool {
		if value.(*cacheEntry).isExpired() {
			c.entries.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		c.logger.Debug("Cleaned up expired cache entries",
			zap.Int("removed", removed))
	}
}

// Ensure MemoryStore implements Cache
var _ shared.Cache = (*MemoryStore)(nil)
