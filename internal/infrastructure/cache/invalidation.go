package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Constants for invalidator configuration
const (
	defaultCloseTimeout        = 5 * time.Second
	DefaultInvalidationChannel = "ledger:cache:invalidate"
)

// InvalidationAction identifies what a peer instance must drop
type InvalidationAction string

const (
	InvalidationActionDelete       InvalidationAction = "delete"
	InvalidationActionDeletePrefix InvalidationAction = "delete_prefix"
)

// InvalidationMessage is published when a cache write must be seen by other instances
type InvalidationMessage struct {
	Action    InvalidationAction `json:"action"`
	Keys      []string           `json:"keys,omitempty"`
	Prefix    string             `json:"prefix,omitempty"`
	Origin    string             `json:"origin"`
	Timestamp int64              `json:"timestamp"`
}

// RedisCacheInvalidator fans local cache invalidations out through Redis Pub/Sub
type RedisCacheInvalidator struct {
	client    *redis.Client
	channel   string
	origin    string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// RedisCacheInvalidatorOption is a functional option for configuring the invalidator
type RedisCacheInvalidatorOption func(*RedisCacheInvalidator)

// WithInvalidatorChannel sets the Pub/Sub channel name
func WithInvalidatorChannel(channel string) RedisCacheInvalidatorOption {
	return func(i *RedisCacheInvalidator) {
		i.channel = channel
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisCacheInvalidatorOption {
	return func(i *RedisCacheInvalidator) {
		i.logger = logger
	}
}

// NewRedisCacheInvalidator creates an invalidator on an existing Redis client.
// The caller retains ownership of the client.
func NewRedisCacheInvalidator(client *redis.Client, opts ...RedisCacheInvalidatorOption) *RedisCacheInvalidator {
	invalidator := &RedisCacheInvalidator{
		client:  client,
		channel: DefaultInvalidationChannel,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(invalidator)
	}

	return invalidator
}

// Origin identifies messages published by this instance
func (i *RedisCacheInvalidator) Origin() string {
	return i.origin
}

// Publish sends an invalidation to all subscribers
func (i *RedisCacheInvalidator) Publish(ctx context.Context, msg InvalidationMessage) error {
	msg.Origin = i.origin
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error("Failed to publish cache invalidation",
			zap.String("channel", i.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish invalidation message: %w", err)
	}

	i.logger.Debug("Published cache invalidation",
		zap.String("action", string(msg.Action)),
		zap.String("channel", i.channel))
	return nil
}

// PublishDelete announces deleted keys
func (i *RedisCacheInvalidator) PublishDelete(ctx context.Context, keys ...string) error {
	return i.Publish(ctx, InvalidationMessage{Action: InvalidationActionDelete, Keys: keys})
}

// PublishDeletePrefix announces a deleted key prefix
func (i *RedisCacheInvalidator) PublishDeletePrefix(ctx context.Context, prefix string) error {
	return i.Publish(ctx, InvalidationMessage{Action: InvalidationActionDeletePrefix, Prefix: prefix})
}

// Subscribe listens for invalidations until ctx is cancelled or Close is called.
// Messages published by this instance are skipped. It blocks.
func (i *RedisCacheInvalidator) Subscribe(ctx context.Context, callback func(msg InvalidationMessage)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	i.cancelFn = cancel
	i.mu.Unlock()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(subCtx); err != nil {
		i.stopRunning()
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	i.logger.Info("Subscribed to cache invalidation channel",
		zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			i.logger.Info("Cache invalidation subscription stopped")
			i.stopRunning()
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Cache invalidation channel closed")
				i.stopRunning()
				return nil
			}
			i.dispatch(msg.Payload, callback)
		}
	}
}

func (i *RedisCacheInvalidator) dispatch(payload string, callback func(msg InvalidationMessage)) {
	var msg InvalidationMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		i.logger.Error("Failed to unmarshal cache invalidation",
			zap.String("payload", payload),
			zap.Error(err))
		return
	}
	if msg.Origin == i.origin {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Panic in cache invalidation callback",
				zap.Any("panic", r))
		}
	}()
	callback(msg)
}

func (i *RedisCacheInvalidator) stopRunning() {
	i.mu.Lock()
	i.isRunning = false
	i.mu.Unlock()
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close stops a running subscription
func (i *RedisCacheInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		// Wait for subscription to stop with timeout
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for subscription to stop")
		}
	}
	return nil
}
