package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEventHandler is a mock implementation of shared.EventHandler
type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventHandler) EventTypes() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockEventHandler) Name() string {
	return "mock-handler"
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Unmark(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// mapIdempotencyStore is a minimal in-memory store
type mapIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMapIdempotencyStore() *mapIdempotencyStore {
	return &mapIdempotencyStore{keys: make(map[string]bool)}
}

func (s *mapIdempotencyStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *mapIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *mapIdempotencyStore) Unmark(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *mapIdempotencyStore) Close() error { return nil }

func TestIdempotentHandler_Handle(t *testing.T) {
	t.Run("new event is processed", func(t *testing.T) {
		mockHandler := new(MockEventHandler)
		event := newTestEvent("TestEvent", uuid.New())
		mockHandler.On("Handle", mock.Anything, event).Return(nil).Once()

		h := NewIdempotentHandler(mockHandler, newMapIdempotencyStore(), zap.NewNop())
		require.NoError(t, h.Handle(context.Background(), event))

		mockHandler.AssertExpectations(t)
		assert.Equal(t, int64(1), h.GetMetrics().Stats().EventsProcessed)
	})

	t.Run("redelivery is skipped", func(t *testing.T) {
		mockHandler := new(MockEventHandler)
		event := newTestEvent("TestEvent", uuid.New())
		mockHandler.On("Handle", mock.Anything, event).Return(nil).Once()

		h := NewIdempotentHandler(mockHandler, newMapIdempotencyStore(), zap.NewNop())
		require.NoError(t, h.Handle(context.Background(), event))
		require.NoError(t, h.Handle(context.Background(), event))

		mockHandler.AssertNumberOfCalls(t, "Handle", 1)
		stats := h.GetMetrics().Stats()
		assert.Equal(t, int64(1), stats.EventsProcessed)
		assert.Equal(t, int64(1), stats.EventsDuplicate)
	})

	t.Run("keys are scoped per handler", func(t *testing.T) {
		store := newMapIdempotencyStore()
		first := newTestHandler("first", "TestEvent")
		second := newTestHandler("second", "TestEvent")
		event := newTestEvent("TestEvent", uuid.New())

		require.NoError(t, NewIdempotentHandler(first, store, zap.NewNop()).Handle(context.Background(), event))
		require.NoError(t, NewIdempotentHandler(second, store, zap.NewNop()).Handle(context.Background(), event))

		assert.Len(t, first.getHandled(), 1)
		assert.Len(t, second.getHandled(), 1)
		processed, err := store.IsProcessed(context.Background(), shared.IdempotencyKey("first", event.EventID()))
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("failure clears the key so a retry runs", func(t *testing.T) {
		store := newMapIdempotencyStore()
		handler := newTestHandler("flaky", "TestEvent")
		handler.setError(errors.New("db timeout"))
		event := newTestEvent("TestEvent", uuid.New())
		h := NewIdempotentHandler(handler, store, zap.NewNop())

		assert.Error(t, h.Handle(context.Background(), event))
		handler.setError(nil)
		assert.NoError(t, h.Handle(context.Background(), event))

		assert.Len(t, handler.getHandled(), 2)
		stats := h.GetMetrics().Stats()
		assert.Equal(t, int64(1), stats.EventsFailed)
		assert.Equal(t, int64(1), stats.EventsProcessed)
	})

	t.Run("store error still processes", func(t *testing.T) {
		store := new(MockIdempotencyStore)
		mockHandler := new(MockEventHandler)
		event := newTestEvent("TestEvent", uuid.New())
		store.On("MarkProcessed", mock.Anything, shared.IdempotencyKey("mock-handler", event.EventID()), 24*time.Hour).
			Return(false, errors.New("redis down"))
		mockHandler.On("Handle", mock.Anything, event).Return(nil)

		h := NewIdempotentHandler(mockHandler, store, zap.NewNop())
		require.NoError(t, h.Handle(context.Background(), event))

		mockHandler.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("disabled bypasses the store", func(t *testing.T) {
		store := new(MockIdempotencyStore)
		mockHandler := new(MockEventHandler)
		event := newTestEvent("TestEvent", uuid.New())
		mockHandler.On("Handle", mock.Anything, event).Return(nil).Twice()

		h := NewIdempotentHandler(mockHandler, store, zap.NewNop(),
			WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: false}),
		)
		require.NoError(t, h.Handle(context.Background(), event))
		require.NoError(t, h.Handle(context.Background(), event))

		mockHandler.AssertExpectations(t)
		store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIdempotentHandler_Delegation(t *testing.T) {
	mockHandler := new(MockEventHandler)
	mockHandler.On("EventTypes").Return([]string{"A", "B"})
	metrics := &IdempotencyMetrics{}

	h := NewIdempotentHandler(mockHandler, newMapIdempotencyStore(), zap.NewNop(), WithIdempotencyMetrics(metrics))

	assert.Equal(t, []string{"A", "B"}, h.EventTypes())
	assert.Equal(t, "mock-handler", h.Name())
	assert.Same(t, metrics, h.GetMetrics())
	assert.Same(t, mockHandler, h.GetWrappedHandler())
}

func TestWrapHandlersWithIdempotency(t *testing.T) {
	handlers := []shared.EventHandler{newTestHandler("a"), newTestHandler("b")}

	wrapped := WrapHandlersWithIdempotency(handlers, newMapIdempotencyStore(), zap.NewNop())

	require.Len(t, wrapped, 2)
	assert.Equal(t, "a", shared.HandlerName(wrapped[0]))
	assert.Equal(t, "b", shared.HandlerName(wrapped[1]))
}
