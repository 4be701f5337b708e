// Package eventstore persists aggregate event streams and rebuilds
// aggregates from them.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Store is the durable event log. Append is atomic per call and ordered per
// stream; LoadAll exposes the global commit order to the dispatcher.
type Store interface {
	event.EventSource

	// Append writes events to a stream whose current version must equal expectedVersion
	Append(ctx context.Context, stream event.Stream, expectedVersion int64, events []shared.DomainEvent) error
	// Load returns a stream's full history in sequence order
	Load(ctx context.Context, stream event.Stream) ([]shared.DomainEvent, error)
	// LoadFrom returns the events with a sequence greater than afterVersion
	LoadFrom(ctx context.Context, stream event.Stream, afterVersion int64) ([]shared.DomainEvent, error)
	// StreamVersion returns the stream's current version, 0 when empty
	StreamVersion(ctx context.Context, stream event.Stream) (int64, error)
	// AddNotifier registers a callback run after every successful append
	AddNotifier(n event.Notifier)
}

func conflictError(stream event.Stream, expected, actual int64) error {
	return shared.ErrConcurrencyConflict.
		WithDetail("stream_id", stream.ID()).
		WithDetail("expected_version", strconv.FormatInt(expected, 10)).
		WithDetail("actual_version", strconv.FormatInt(actual, 10))
}

func claimTakenError(tenant string, claim shared.UniqueClaim) error {
	return shared.ErrAlreadyExists.
		WithDetail("tenant_id", tenant).
		WithDetail("scope", claim.Scope).
		WithDetail("value", claim.Value)
}

// validateAppend checks that every event belongs to the stream and carries the
// next contiguous sequence after expectedVersion.
func validateAppend(stream event.Stream, expectedVersion int64, events []shared.DomainEvent) error {
	if expectedVersion < 0 {
		return fmt.Errorf("invalid expected version %d for stream %s", expectedVersion, stream.ID())
	}
	for i, e := range events {
		if e.TenantID() != stream.TenantID {
			return shared.ErrTenantMismatch.WithDetail("event_id", e.EventID().String())
		}
		if e.AggregateID() != stream.AggregateID || e.AggregateType() != stream.AggregateType {
			return fmt.Errorf("event %s does not belong to stream %s", e.EventID(), stream.ID())
		}
		if want := expectedVersion + int64(i) + 1; e.Sequence() != want {
			return fmt.Errorf("event %s on stream %s: expected sequence %d, got %d", e.EventID(), stream.ID(), want, e.Sequence())
		}
	}
	return nil
}

// claimsOf collects the unique values an append reserves
func claimsOf(events []shared.DomainEvent) []shared.UniqueClaim {
	var claims []shared.UniqueClaim
	for _, e := range events {
		if c, ok := e.(shared.UniqueClaimer); ok {
			claims = append(claims, c.UniqueClaims()...)
		}
	}
	return claims
}

// isUniqueViolation recognises duplicate-key errors from the postgres and sqlite drivers
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key value")
}
