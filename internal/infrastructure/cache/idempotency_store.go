package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

var processedMarker = []byte("1")

// InMemoryIdempotencyStore keeps processed keys in a MemoryStore. State is
// per process, so a second worker would process every event again.
type InMemoryIdempotencyStore struct {
	store *MemoryStore
}

// NewInMemoryIdempotencyStore creates an in-memory idempotency store
func NewInMemoryIdempotencyStore(opts ...MemoryStoreOption) *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{store: NewMemoryStore(opts...)}
}

// MarkProcessed records key for ttl and reports whether it was new
func (s *InMemoryIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.store.SetIfAbsent(ctx, key, processedMarker, ttl)
}

// IsProcessed reports whether key is recorded and not expired
func (s *InMemoryIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	_, found, err := s.store.Get(ctx, key)
	return found, err
}

// Unmark forgets a key so the event can be processed again
func (s *InMemoryIdempotencyStore) Unmark(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// Close stops the expiry sweeper
func (s *InMemoryIdempotencyStore) Close() error {
	return s.store.Close()
}

// Size returns the number of recorded keys, expired ones included until swept
func (s *InMemoryIdempotencyStore) Size() int {
	return s.store.Count()
}

// RedisIdempotencyStore shares processed keys between workers through Redis.
// MarkProcessed is a single SET NX so two workers never both win a key.
type RedisIdempotencyStore struct {
	client *redis.Client
	keys   Keys
}

// NewRedisIdempotencyStore creates a store on a client the caller owns
func NewRedisIdempotencyStore(client *redis.Client, keys Keys) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, keys: keys}
}

func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keys.Idempotency(key), processedMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event as processed: %w", err)
	}
	return ok, nil
}

func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keys.Idempotency(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if event is processed: %w", err)
	}
	return n > 0, nil
}

func (s *RedisIdempotencyStore) Unmark(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keys.Idempotency(key)).Err(); err != nil {
		return fmt.Errorf("failed to unmark event: %w", err)
	}
	return nil
}

// Close is a no-op, the factory closes the shared client
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

var (
	_ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
	_ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
)
