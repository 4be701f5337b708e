package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// CatchUpProcessorConfig holds configuration for the catch-up processor
type CatchUpProcessorConfig struct {
	Name         string // checkpoint name
	BatchSize    int
	PollInterval time.Duration
	// GapTimeout is how long a missing position is waited for before it is
	// treated as a rolled-back append
	GapTimeout time.Duration
}

// DefaultCatchUpProcessorConfig returns default configuration
func DefaultCatchUpProcessorConfig() CatchUpProcessorConfig {
	return CatchUpProcessorConfig{
		Name:         "ledger-dispatch",
		BatchSize:    100,
		PollInterval: 5 * time.Second,
		GapTimeout:   10 * time.Second,
	}
}

// CatchUpProcessor reads the global event log after its checkpoint and
// publishes each event to the bus. The checkpoint is stored only after the
// batch has been published, so delivery is at-least-once in log order.
//
// Positions are allocated before commit, so a later position can become
// visible while an earlier one is still in flight. The processor never moves
// past a missing position until the event after it is older than GapTimeout.
type CatchUpProcessor struct {
	source      EventSource
	publisher   shared.EventPublisher
	checkpoints CheckpointStore
	config      CatchUpProcessorConfig
	logger      *zap.Logger

	mu      sync.Mutex // serializes catch-up runs
	gapHeld bool
	now     func() time.Time
	wake    chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCatchUpProcessor creates a new catch-up processor
func NewCatchUpProcessor(
	source EventSource,
	publisher shared.EventPublisher,
	checkpoints CheckpointStore,
	config CatchUpProcessorConfig,
	logger *zap.Logger,
) *CatchUpProcessor {
	defaults := DefaultCatchUpProcessorConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.GapTimeout <= 0 {
		config.GapTimeout = defaults.GapTimeout
	}
	return &CatchUpProcessor{
		source:      source,
		publisher:   publisher,
		checkpoints: checkpoints,
		config:      config,
		logger:      logger,
		now:         time.Now,
		wake:        make(chan struct{}, 1),
	}
}

// Notify wakes the processor without waiting for the next poll
func (p *CatchUpProcessor) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start starts the background processing
func (p *CatchUpProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	p.logger.Info("catch-up processor started",
		zap.String("name", p.config.Name),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the processor
func (p *CatchUpProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("catch-up processor stopped", zap.String("name", p.config.Name))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *CatchUpProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// drain whatever was committed while we were down
	p.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.run(ctx)
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *CatchUpProcessor) run(ctx context.Context) {
	if _, err := p.CatchUp(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("catch-up failed", zap.String("name", p.config.Name), zap.Error(err))
	}
}

// CatchUp dispatches batches until the head of the log is reached and
// returns the number of events published.
func (p *CatchUpProcessor) CatchUp(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	checkpoint, err := p.checkpoints.Load(ctx, p.config.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint %s: %w", p.config.Name, err)
	}

	total := 0
	p.gapHeld = false
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := p.source.LoadAll(ctx, checkpoint, p.config.BatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to load events after %d: %w", checkpoint, err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		ready, held := p.contiguous(checkpoint, batch)
		next, published, pubErr := p.publishBatch(ctx, ready)
		total += published
		if next > checkpoint {
			if err := p.checkpoints.Save(ctx, p.config.Name, next); err != nil {
				return total, fmt.Errorf("failed to store checkpoint %s: %w", p.config.Name, err)
			}
			checkpoint = next
		}
		if pubErr != nil {
			return total, pubErr
		}

		p.logger.Debug("dispatched batch",
			zap.String("name", p.config.Name),
			zap.Int("count", published),
			zap.Int64("checkpoint", checkpoint),
		)
		if held {
			p.gapHeld = true
			p.logger.Debug("waiting for position gap",
				zap.String("name", p.config.Name),
				zap.Int64("after", checkpoint),
			)
			return total, nil
		}
		if len(batch) < p.config.BatchSize {
			return total, nil
		}
	}
}

// contiguous returns the prefix of batch that may be published after
// checkpoint, and whether it stopped in front of a gap still being waited for.
func (p *CatchUpProcessor) contiguous(checkpoint int64, batch []Envelope) ([]Envelope, bool) {
	expected := checkpoint + 1
	for i, env := range batch {
		if env.Position > expected {
			if p.now().Sub(env.RecordedAt) < p.config.GapTimeout {
				return batch[:i], true
			}
			p.logger.Debug("skipping position gap",
				zap.String("name", p.config.Name),
				zap.Int64("from", expected),
				zap.Int64("to", env.Position-1),
			)
		}
		expected = env.Position + 1
	}
	return batch, false
}

// HoldingGap reports whether the last run stopped in front of a missing position
func (p *CatchUpProcessor) HoldingGap() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gapHeld
}

// publishBatch returns the position of the last published event
func (p *CatchUpProcessor) publishBatch(ctx context.Context, batch []Envelope) (int64, int, error) {
	var last int64
	for i, env := range batch {
		if err := p.publisher.Publish(WithPosition(ctx, env.Position), env.Event); err != nil {
			p.logger.Error("failed to publish event",
				zap.String("event_id", env.Event.EventID().String()),
				zap.String("event_type", env.Event.EventType()),
				zap.String("stream_id", env.StreamID),
				zap.Int64("position", env.Position),
				zap.Error(err),
			)
			return last, i, fmt.Errorf("failed to publish event at position %d: %w", env.Position, err)
		}
		last = env.Position
	}
	return last, len(batch), nil
}

// Checkpoint returns the stored position
func (p *CatchUpProcessor) Checkpoint(ctx context.Context) (int64, error) {
	return p.checkpoints.Load(ctx, p.config.Name)
}

// Reset forgets the checkpoint so the next run starts from the first event
func (p *CatchUpProcessor) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkpoints.Delete(ctx, p.config.Name)
}

var _ Notifier = (*CatchUpProcessor)(nil)
