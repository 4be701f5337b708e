package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	headerEventType = "Ledger-Event-Type"
	headerPosition  = "Ledger-Position"
)

// NATSConfig holds configuration for the JetStream event bus
type NATSConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	Durable       string
	MaxAge        time.Duration
	AckWait       time.Duration
	FetchBatch    int
	FetchWait     time.Duration
}

// DefaultNATSConfig returns defaults for the JetStream event bus
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		StreamName:    "LEDGER_EVENTS",
		SubjectPrefix: "ledger",
		Durable:       "ledger-projections",
		MaxAge:        7 * 24 * time.Hour,
		AckWait:       30 * time.Second,
		FetchBatch:    32,
		FetchWait:     time.Second,
	}
}

// NATSEventBus publishes events to a JetStream stream and delivers them to the
// registered handlers through a durable pull consumer. MaxAckPending is 1, so
// a message is not handed out until the previous one is acked, which keeps
// per-stream order.
type NATSEventBus struct {
	*dispatcher
	nc         *nats.Conn
	js         nats.JetStreamContext
	serializer *EventSerializer
	config     NATSConfig
	ownsConn   bool

	mu     sync.Mutex
	sub    *nats.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNATSEventBus connects to the configured NATS server
func NewNATSEventBus(config NATSConfig, serializer *EventSerializer, logger *zap.Logger, opts ...BusOption) (*NATSEventBus, error) {
	nc, err := nats.Connect(config.URL, nats.Name(config.Durable))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	bus, err := NewNATSEventBusWithConn(nc, config, serializer, logger, opts...)
	if err != nil {
		nc.Close()
		return nil, err
	}
	bus.ownsConn = true
	return bus, nil
}

// NewNATSEventBusWithConn uses an existing connection. The caller keeps ownership of nc.
func NewNATSEventBusWithConn(nc *nats.Conn, config NATSConfig, serializer *EventSerializer, logger *zap.Logger, opts ...BusOption) (*NATSEventBus, error) {
	defaults := DefaultNATSConfig()
	if config.StreamName == "" {
		config.StreamName = defaults.StreamName
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = defaults.SubjectPrefix
	}
	if config.Durable == "" {
		config.Durable = defaults.Durable
	}
	if config.AckWait <= 0 {
		config.AckWait = defaults.AckWait
	}
	if config.FetchBatch <= 0 {
		config.FetchBatch = defaults.FetchBatch
	}
	if config.FetchWait <= 0 {
		config.FetchWait = defaults.FetchWait
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bus := &NATSEventBus{
		dispatcher: newDispatcher(TransportNATS, logger, opts...),
		nc:         nc,
		js:         js,
		serializer: serializer,
		config:     config,
	}
	if err := bus.ensureStream(); err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}
	return bus, nil
}

// ensureStream creates or updates the JetStream stream
func (b *NATSEventBus) ensureStream() error {
	streamConfig := &nats.StreamConfig{
		Name:      b.config.StreamName,
		Subjects:  []string{b.config.SubjectPrefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    b.config.MaxAge,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	info, err := b.js.StreamInfo(b.config.StreamName)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		if _, err := b.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	}

	if info.Config.MaxAge != b.config.MaxAge {
		if _, err := b.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("failed to update stream: %w", err)
		}
	}
	return nil
}

// ensureConsumer creates the durable consumer so that unsubscribing never deletes it
func (b *NATSEventBus) ensureConsumer() error {
	if _, err := b.js.ConsumerInfo(b.config.StreamName, b.config.Durable); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrConsumerNotFound) {
		return err
	}

	_, err := b.js.AddConsumer(b.config.StreamName, &nats.ConsumerConfig{
		Durable:       b.config.Durable,
		AckPolicy:     nats.AckExplicitPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
		AckWait:       b.config.AckWait,
		MaxAckPending: 1,
		FilterSubject: b.config.SubjectPrefix + ".>",
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", b.config.Durable, err)
	}
	return nil
}

// Subject returns the subject an event is published on: <prefix>.<tenant>.<aggregateType>
func (b *NATSEventBus) Subject(event shared.DomainEvent) string {
	return b.config.SubjectPrefix + "." + event.TenantID().String() + "." + event.AggregateType()
}

// Publish publishes events to JetStream with the event id as message id,
// so the server drops a republish of the same event within its duplicate window.
func (b *NATSEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	position := PositionFromContext(ctx)
	for _, event := range events {
		data, err := b.serializer.Serialize(event)
		if err != nil {
			return err
		}

		msg := nats.NewMsg(b.Subject(event))
		msg.Data = data
		msg.Header.Set(headerEventType, event.EventType())
		if position > 0 {
			msg.Header.Set(headerPosition, strconv.FormatInt(position, 10))
		}

		if _, err := b.js.PublishMsg(msg, nats.MsgId(event.EventID().String()), nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.EventID(), err)
		}
	}
	return nil
}

// Subscribe registers a handler for specific event types
func (b *NATSEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed",
		zap.String("handler", shared.HandlerName(handler)),
		zap.Strings("event_types", eventTypes),
		zap.String("transport", TransportNATS),
	)
}

// Unsubscribe removes a handler
func (b *NATSEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start binds to the durable consumer and begins fetching
func (b *NATSEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		return nil
	}
	if err := b.ensureConsumer(); err != nil {
		return err
	}
	sub, err := b.js.PullSubscribe("", b.config.Durable, nats.Bind(b.config.StreamName, b.config.Durable))
	if err != nil {
		return fmt.Errorf("failed to bind pull consumer: %w", err)
	}
	b.sub = sub

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.wg.Add(1)
	go b.fetchLoop(ctx, sub)

	b.logger.Info("event bus started",
		zap.String("transport", TransportNATS),
		zap.String("stream", b.config.StreamName),
		zap.String("durable", b.config.Durable),
	)
	return nil
}

// Stop stops fetching, leaves the durable consumer in place and closes an owned connection
func (b *NATSEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}
	if b.ownsConn {
		b.nc.Close()
	}
	b.logger.Info("event bus stopped", zap.String("transport", TransportNATS))
	return err
}

func (b *NATSEventBus) fetchLoop(ctx context.Context, sub *nats.Subscription) {
	defer b.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := sub.Fetch(b.config.FetchBatch, nats.MaxWait(b.config.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			b.logger.Warn("failed to fetch events", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.config.FetchWait):
			}
			continue
		}
		for _, msg := range msgs {
			b.handleMsg(ctx, msg)
		}
	}
}

// handleMsg dispatches one message and acks it. Handler failures are recorded
// by the dispatcher, so the message is acked either way; an undecodable
// message is terminated.
func (b *NATSEventBus) handleMsg(ctx context.Context, msg *nats.Msg) {
	eventType := msg.Header.Get(headerEventType)
	event, err := b.serializer.Deserialize(eventType, msg.Data)
	if err != nil {
		b.logger.Error("failed to decode event message",
			zap.String("subject", msg.Subject),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		if termErr := msg.Term(); termErr != nil {
			b.logger.Warn("failed to terminate message", zap.Error(termErr))
		}
		return
	}

	if p := msg.Header.Get(headerPosition); p != "" {
		if position, err := strconv.ParseInt(p, 10, 64); err == nil {
			ctx = WithPosition(ctx, position)
		}
	}
	b.dispatch(ctx, event)

	if err := msg.Ack(); err != nil {
		b.logger.Warn("failed to ack event",
			zap.String("event_id", event.EventID().String()),
			zap.Error(err),
		)
	}
}

// Ensure NATSEventBus implements EventBus
var _ shared.EventBus = (*NATSEventBus)(nil)
