package event

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// DispatchMetrics receives dispatch counters. *telemetry.LedgerMetrics implements it.
type DispatchMetrics interface {
	RecordDispatched(ctx context.Context, eventType, transport string)
	RecordProjectionFailure(ctx context.Context, handler, eventType string)
	RecordProjectionLatency(ctx context.Context, handler string, d time.Duration)
}

// BusOption configures an event bus
type BusOption func(*dispatcher)

// WithFailureRecorder persists handler failures for later repair
func WithFailureRecorder(recorder shared.FailureRecorder) BusOption {
	return func(d *dispatcher) {
		d.failures = recorder
	}
}

// WithDispatchMetrics sets the metrics sink
func WithDispatchMetrics(metrics DispatchMetrics) BusOption {
	return func(d *dispatcher) {
		d.metrics = metrics
	}
}

// dispatcher fans one event out to the registered handlers. A handler failure
// is logged, counted and recorded, and never reaches the publisher.
type dispatcher struct {
	registry  *HandlerRegistry
	logger    *zap.Logger
	failures  shared.FailureRecorder
	metrics   DispatchMetrics
	transport string
}

func newDispatcher(transport string, log *zap.Logger, opts ...BusOption) *dispatcher {
	d := &dispatcher{
		registry:  NewHandlerRegistry(),
		logger:    log,
		metrics:   telemetry.NewNopLedgerMetrics(),
		transport: transport,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *dispatcher) dispatch(ctx context.Context, event shared.DomainEvent) {
	d.metrics.RecordDispatched(ctx, event.EventType(), d.transport)
	ctx, _ = logger.ForEvent(ctx, d.logger, event)
	for _, handler := range d.registry.GetHandlers(event.EventType()) {
		name := shared.HandlerName(handler)
		start := time.Now()
		err := d.invoke(ctx, name, handler, event)
		d.metrics.RecordProjectionLatency(ctx, name, time.Since(start))
		if err != nil {
			d.handleFailure(ctx, name, event, err)
		}
	}
}

// invoke calls one handler inside a consumer span and turns a panic into an error
func (d *dispatcher) invoke(ctx context.Context, name string, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	ctx, span := telemetry.StartHandlerSpan(ctx, name, event.EventType(), event.AggregateID().String())
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
		if err != nil {
			telemetry.RecordError(span, err)
		}
	}()

	return handler.Handle(ctx, event)
}

func (d *dispatcher) handleFailure(ctx context.Context, handler string, event shared.DomainEvent, cause error) {
	position := PositionFromContext(ctx)
	d.metrics.RecordProjectionFailure(ctx, handler, event.EventType())
	log := logger.FromContext(ctx, d.logger)
	log.Error("handler failed to process event",
		zap.String("handler", handler),
		zap.String("stream_id", StreamOfEvent(event).ID()),
		zap.Int64("position", position),
		zap.Error(cause),
	)

	if d.failures == nil {
		return
	}
	failure := shared.NewProcessingFailure(shared.FailureKindProjection, handler, event, cause).WithPosition(position)
	if err := d.failures.Record(ctx, failure); err != nil {
		log.Error("failed to record projection failure",
			zap.String("handler", handler),
			zap.Error(err),
		)
	}
}

// InMemoryEventBus implements EventBus with in-memory pub/sub
type InMemoryEventBus struct {
	*dispatcher
	running atomic.Bool
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(log *zap.Logger, opts ...BusOption) *InMemoryEventBus {
	return &InMemoryEventBus{
		dispatcher: newDispatcher(TransportMemory, log, opts...),
	}
}

// Publish delivers events to all registered handlers synchronously, in order
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, event := range events {
		b.dispatch(ctx, event)
	}
	return nil
}

// Subscribe registers a handler for specific event types
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	// If handler specifies its own event types, use those
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed",
		zap.String("handler", shared.HandlerName(handler)),
		zap.Strings("event_types", eventTypes),
	)
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed", zap.String("handler", shared.HandlerName(handler)))
}

// Handlers returns the subscribed handlers in registration order
func (b *InMemoryEventBus) Handlers() []shared.EventHandler {
	return b.registry.GetAllHandlers()
}

// Start starts the event bus
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started", zap.String("transport", b.transport))
	return nil
}

// Stop stops the event bus
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped", zap.String("transport", b.transport))
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop
func (b *InMemoryEventBus) IsRunning() bool {
	return b.running.Load()
}

// Ensure InMemoryEventBus implements EventBus
var _ shared.EventBus = (*InMemoryEventBus)(nil)
