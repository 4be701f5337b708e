package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Retry defaults for conflicting updates
const (
	DefaultMaxAttempts    = 4
	DefaultInitialBackoff = 10 * time.Millisecond
)

// RetryPolicy bounds how often a conflicting update is retried
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultRetryPolicy returns 4 attempts with 10ms, 20ms, 40ms waits between them
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, InitialBackoff: DefaultInitialBackoff}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	return p
}

// Backoff returns the wait after the given failed attempt (1-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.InitialBackoff << (attempt - 1)
}

// RetryOnConflict runs op until it succeeds, fails with a non-conflict error,
// or MaxAttempts conflicts have happened. op must reload its aggregate on
// every call.
func RetryOnConflict(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	policy = policy.normalized()
	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err = op(ctx)
		if err == nil || !shared.IsConflict(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}
		telemetry.AddEvent(trace.SpanFromContext(ctx), "concurrency_retry", "attempt", attempt)
		timer := time.NewTimer(policy.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", policy.MaxAttempts, err)
}

// RepositoryOption configures a Repository
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	snapshots SnapshotStore
	strategy  SnapshotStrategy
	retry     RetryPolicy
	logger    *zap.Logger
}

// WithSnapshots enables snapshotting for aggregates that implement shared.Snapshotter
func WithSnapshots(store SnapshotStore, strategy SnapshotStrategy) RepositoryOption {
	return func(o *repositoryOptions) {
		o.snapshots = store
		o.strategy = strategy
	}
}

// WithRetryPolicy sets the conflict retry policy used by Update
func WithRetryPolicy(policy RetryPolicy) RepositoryOption {
	return func(o *repositoryOptions) {
		o.retry = policy
	}
}

// WithRepositoryLogger sets the logger
func WithRepositoryLogger(logger *zap.Logger) RepositoryOption {
	return func(o *repositoryOptions) {
		o.logger = logger
	}
}

// Repository loads and saves one aggregate type through a Store
type Repository[T shared.AggregateRoot] struct {
	store         Store
	factory       func() T
	aggregateType string
	opts          repositoryOptions
}

// NewRepository creates a repository. factory returns an empty aggregate
// ready for Rehydrate.
func NewRepository[T shared.AggregateRoot](store Store, factory func() T, opts ...RepositoryOption) *Repository[T] {
	o := repositoryOptions{retry: DefaultRetryPolicy(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.snapshots != nil && o.strategy == nil {
		o.strategy = NewIntervalSnapshotStrategy(DefaultSnapshotInterval)
	}
	return &Repository[T]{
		store:         store,
		factory:       factory,
		aggregateType: factory().AggregateType(),
		opts:          o,
	}
}

// Stream returns the stream of the aggregate with the given id
func (r *Repository[T]) Stream(tenantID, id uuid.UUID) event.Stream {
	return event.Stream{TenantID: tenantID, AggregateType: r.aggregateType, AggregateID: id}
}

// Load rehydrates an aggregate from its latest snapshot and the events after
// it. An empty stream is shared.ErrNotFound.
func (r *Repository[T]) Load(ctx context.Context, tenantID, id uuid.UUID) (T, error) {
	ctx, span := telemetry.StartStreamSpan(ctx, "load", tenantID.String(), r.aggregateType, id.String())
	defer span.End()

	agg := r.factory()
	found, err := r.hydrate(ctx, agg, r.Stream(tenantID, id))
	if err != nil {
		telemetry.RecordError(span, err)
		var zero T
		return zero, err
	}
	if !found {
		var zero T
		return zero, shared.ErrNotFound.
			WithDetail("aggregate_type", r.aggregateType).
			WithDetail("id", id.String())
	}
	return agg, nil
}

// Hydrate folds the stored history into an aggregate that already carries its
// id and tenant. It reports whether the stream had any events.
func (r *Repository[T]) Hydrate(ctx context.Context, agg T) (bool, error) {
	return r.hydrate(ctx, agg, event.StreamOf(agg))
}

func (r *Repository[T]) hydrate(ctx context.Context, agg T, stream event.Stream) (bool, error) {
	var after int64
	if r.opts.snapshots != nil {
		if snap, ok := any(agg).(shared.Snapshotter); ok {
			version, err := r.restoreSnapshot(ctx, snap, stream)
			if err != nil {
				return false, err
			}
			after = version
		}
	}

	history, err := r.store.LoadFrom(ctx, stream, after)
	if err != nil {
		return false, err
	}
	if after == 0 && len(history) == 0 {
		return false, nil
	}
	if err := agg.Rehydrate(stream.AggregateID, stream.TenantID, history); err != nil {
		return false, fmt.Errorf("failed to rehydrate %s: %w", stream.ID(), err)
	}
	return true, nil
}

func (r *Repository[T]) restoreSnapshot(ctx context.Context, snap shared.Snapshotter, stream event.Stream) (int64, error) {
	latest, err := r.opts.snapshots.Latest(ctx, stream)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	if err := snap.RestoreSnapshot(stream.AggregateID, stream.TenantID, latest.Version, latest.State); err != nil {
		// fall back to the full history
		r.opts.logger.Warn("discarding unreadable snapshot",
			zap.String("stream_id", stream.ID()),
			zap.Int64("version", latest.Version),
			zap.Error(err),
		)
		return 0, nil
	}
	return latest.Version, nil
}

// Save appends the aggregate's uncommitted events at its persisted version
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}
	stream := event.StreamOf(agg)
	ctx, span := telemetry.StartStreamSpan(ctx, "save",
		stream.TenantID.String(), stream.AggregateType, stream.AggregateID.String(),
		telemetry.WithAttribute("event_count", len(events)),
	)
	defer span.End()

	expected := agg.Version() - int64(len(events))
	if err := r.store.Append(ctx, stream, expected, events); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	agg.MarkCommitted()
	r.maybeSnapshot(ctx, agg, stream, expected)
	return nil
}

func (r *Repository[T]) maybeSnapshot(ctx context.Context, agg T, stream event.Stream, previous int64) {
	if r.opts.snapshots == nil || !r.opts.strategy.ShouldSnapshot(previous, agg.Version()) {
		return
	}
	snap, ok := any(agg).(shared.Snapshotter)
	if !ok {
		return
	}
	state, err := snap.SnapshotState()
	if err == nil {
		err = r.opts.snapshots.Save(ctx, Snapshot{
			Stream:    stream,
			Version:   agg.Version(),
			State:     state,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		r.opts.logger.Warn("failed to save snapshot",
			zap.String("stream_id", stream.ID()),
			zap.Int64("version", agg.Version()),
			zap.Error(err),
		)
	}
}

// Update loads the aggregate, applies fn and saves it, retrying the whole
// cycle on concurrency conflicts.
func (r *Repository[T]) Update(ctx context.Context, tenantID, id uuid.UUID, fn func(agg T) error) (T, error) {
	var result T
	err := RetryOnConflict(ctx, r.opts.retry, func(ctx context.Context) error {
		agg, err := r.Load(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := fn(agg); err != nil {
			return err
		}
		if err := r.Save(ctx, agg); err != nil {
			return err
		}
		result = agg
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Exists reports whether the stream has any events
func (r *Repository[T]) Exists(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	version, err := r.store.StreamVersion(ctx, r.Stream(tenantID, id))
	if err != nil {
		return false, err
	}
	return version > 0, nil
}

// RetryPolicy returns the policy Update uses
func (r *Repository[T]) RetryPolicy() RetryPolicy {
	return r.opts.retry
}
