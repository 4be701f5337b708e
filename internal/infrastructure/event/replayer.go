package event

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// gapRetryInterval is how often a replay re-reads the log while waiting for
// an in-flight append
const gapRetryInterval = 200 * time.Millisecond

// ProjectionResetter wipes the rows a named projection wrote
type ProjectionResetter interface {
	ResetProjection(ctx context.Context, projection string) error
}

// Replayer rebuilds read models from the event log. It dispatches through a
// private in-memory bus so only the handlers being rebuilt see the events.
type Replayer struct {
	source    EventSource
	resetter  ProjectionResetter
	batchSize int
	logger    *zap.Logger
	busOpts   []BusOption
}

// NewReplayer creates a replayer. resetter may be nil when handlers are rebuilt without a reset.
func NewReplayer(source EventSource, resetter ProjectionResetter, logger *zap.Logger, opts ...BusOption) *Replayer {
	return &Replayer{
		source:    source,
		resetter:  resetter,
		batchSize: DefaultCatchUpProcessorConfig().BatchSize,
		logger:    logger,
		busOpts:   opts,
	}
}

// Rebuild resets each handler's projection and replays the whole log into them.
// It returns the number of events read.
func (r *Replayer) Rebuild(ctx context.Context, handlers ...shared.EventHandler) (int, error) {
	if len(handlers) == 0 {
		return 0, nil
	}

	names := make([]string, 0, len(handlers))
	for _, h := range handlers {
		name := shared.HandlerName(h)
		names = append(names, name)
		if r.resetter == nil {
			continue
		}
		if err := r.resetter.ResetProjection(ctx, name); err != nil {
			return 0, fmt.Errorf("failed to reset projection %s: %w", name, err)
		}
	}

	bus := r.busFor(handlers)
	processor := NewCatchUpProcessor(r.source, bus, NewMemoryCheckpointStore(), CatchUpProcessorConfig{
		Name:      "replay",
		BatchSize: r.batchSize,
	}, r.logger)

	r.logger.Info("rebuilding projections", zap.Strings("projections", names))
	n := 0
	for {
		published, err := processor.CatchUp(ctx)
		n += published
		if err != nil {
			return n, fmt.Errorf("replay stopped after %d events: %w", n, err)
		}
		if !processor.HoldingGap() {
			break
		}
		select {
		case <-ctx.Done():
			return n, fmt.Errorf("replay stopped after %d events: %w", n, ctx.Err())
		case <-time.After(gapRetryInterval):
		}
	}
	r.logger.Info("projections rebuilt", zap.Strings("projections", names), zap.Int("events", n))
	return n, nil
}

// RebuildStream re-dispatches one stream's history without resetting anything.
// Handlers skip or re-derive what they already applied.
func (r *Replayer) RebuildStream(ctx context.Context, stream Stream, handlers ...shared.EventHandler) (int, error) {
	history, err := r.source.LoadStreamEnvelopes(ctx, stream)
	if err != nil {
		return 0, fmt.Errorf("failed to load stream %s: %w", stream.ID(), err)
	}

	bus := r.busFor(handlers)
	for _, env := range history {
		if err := bus.Publish(WithPosition(ctx, env.Position), env.Event); err != nil {
			return 0, err
		}
	}

	r.logger.Info("stream replayed",
		zap.String("stream_id", stream.ID()),
		zap.Int("events", len(history)),
	)
	return len(history), nil
}

func (r *Replayer) busFor(handlers []shared.EventHandler) *InMemoryEventBus {
	bus := NewInMemoryEventBus(r.logger, r.busOpts...)
	for _, h := range handlers {
		bus.Subscribe(h)
	}
	return bus
}
