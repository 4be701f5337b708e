package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// fillLeasePrefix marks a key whose value is being loaded. JSON values never
// start with a NUL byte.
const fillLeasePrefix = "\x00fill:"

// fillLeaseTTL bounds how long an abandoned lease hides a key
const fillLeaseTTL = 30 * time.Second

// GetJSON reads and decodes a cached value. A corrupt entry is deleted and
// reported as a miss.
func GetJSON[T any](ctx context.Context, c shared.Cache, key string) (T, bool, error) {
	var zero T
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	if isFillLease(data) {
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		_ = c.Delete(ctx, key)
		return zero, false, nil
	}
	return value, true, nil
}

// SetJSON encodes and caches a value
func SetJSON(ctx context.Context, c shared.Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. The fill is fenced by a FillLease, so an invalidation that lands
// while load runs keeps the loaded value out of the cache. Cache failures
// degrade to a plain load.
func GetOrLoad[T any](ctx context.Context, c shared.Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if value, ok, err := GetJSON[T](ctx, c, key); err == nil && ok {
		return value, nil
	}

	lease := AcquireFill(ctx, c, key)
	value, err := load(ctx)
	if err != nil {
		lease.Release(ctx)
		return value, err
	}
	_, _ = lease.Fill(ctx, value, ttl)
	return value, nil
}

// FillLease fences a read-through fill against invalidation. The lease token
// occupies the key until the fill, and readers see it as a miss. Delete or
// DeletePrefix on the key removes the token, and Fill then skips the write.
// The check and the write are two calls, so only an invalidation that lands
// between them can still be overwritten.
type FillLease struct {
	cache shared.Cache
	key   string
	token []byte
	held  bool
}

// AcquireFill places a fill lease on key. A lease that could not be written
// never fills.
func AcquireFill(ctx context.Context, c shared.Cache, key string) *FillLease {
	token := []byte(fillLeasePrefix + uuid.NewString())
	return &FillLease{
		cache: c,
		key:   key,
		token: token,
		held:  c.Set(ctx, key, token, fillLeaseTTL) == nil,
	}
}

// Fill caches value when the lease is still in place and reports whether it
// was written
func (l *FillLease) Fill(ctx context.Context, value any, ttl time.Duration) (bool, error) {
	if !l.holds(ctx) {
		return false, nil
	}
	if err := SetJSON(ctx, l.cache, l.key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Release drops the lease after a failed load
func (l *FillLease) Release(ctx context.Context) {
	if l.holds(ctx) {
		_ = l.cache.Delete(ctx, l.key)
	}
}

func (l *FillLease) holds(ctx context.Context) bool {
	if !l.held {
		return false
	}
	current, found, err := l.cache.Get(ctx, l.key)
	return err == nil && found && bytes.Equal(current, l.token)
}

func isFillLease(data []byte) bool {
	return bytes.HasPrefix(data, []byte(fillLeasePrefix))
}

// NoopStore is a cache that never holds anything. It is used when caching is disabled.
type NoopStore struct{}

// Get always misses
func (NoopStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

// Set discards the value
func (NoopStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// Delete is a no-op
func (NoopStore) Delete(context.Context, ...string) error {
	return nil
}

// DeletePrefix is a no-op
func (NoopStore) DeletePrefix(context.Context, string) error {
	return nil
}

// Close is a no-op
func (NoopStore) Close() error {
	return nil
}

var _ shared.Cache = NoopStore{}
