package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IdempotencyStore remembers which handler has already processed which event
// so that transport redeliveries are skipped.
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL
	// Returns true if the key was newly marked, false if it was already present
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Unmark forgets a key so the event can be processed again
	Unmark(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyKey scopes an event id to the handler processing it. Several
// handlers receive the same event, so the event id alone is not enough.
func IdempotencyKey(handler string, eventID uuid.UUID) string {
	return handler + ":" + eventID.String()
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is the time-to-live for processed keys
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
