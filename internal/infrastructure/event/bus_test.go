package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEvent implements DomainEvent for testing
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string, tenantID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New(), tenantID),
		Data:            "test data",
	}
}

// testHandler implements NamedHandler for testing
type testHandler struct {
	name       string
	eventTypes []string
	handled    []shared.DomainEvent
	positions  []int64
	err        error
	panicMsg   string
	mu         sync.Mutex
}

func newTestHandler(name string, eventTypes ...string) *testHandler {
	return &testHandler{
		name:       name,
		eventTypes: eventTypes,
		handled:    make([]shared.DomainEvent, 0),
	}
}

func (h *testHandler) Name() string {
	return h.name
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	h.positions = append(h.positions, PositionFromContext(ctx))
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) setError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func (h *testHandler) getPositions() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.positions...)
}

// recordingFailures collects recorded failures
type recordingFailures struct {
	mu       sync.Mutex
	failures []*shared.ProcessingFailure
	err      error
}

func (r *recordingFailures) Record(ctx context.Context, failure *shared.ProcessingFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure)
	return r.err
}

func (r *recordingFailures) all() []*shared.ProcessingFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*shared.ProcessingFailure(nil), r.failures...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("h1", "TestEvent")
	bus.Subscribe(handler, "TestEvent")

	event := newTestEvent("TestEvent", uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, event, handler.getHandled()[0])
}

func TestInMemoryEventBus_PublishPreservesOrder(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("ordered", "TestEvent")
	bus.Subscribe(handler)

	tenantID := uuid.New()
	events := []shared.DomainEvent{
		newTestEvent("TestEvent", tenantID),
		newTestEvent("TestEvent", tenantID),
		newTestEvent("TestEvent", tenantID),
	}
	require.NoError(t, bus.Publish(context.Background(), events...))

	assert.Equal(t, events, handler.getHandled())
}

func TestInMemoryEventBus_SubscribeUsesHandlerEventTypes(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("typed", "Wanted")
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent("Wanted", uuid.New()),
		newTestEvent("Other", uuid.New()),
	))

	handled := handler.getHandled()
	require.Len(t, handled, 1)
	assert.Equal(t, "Wanted", handled[0].EventType())
}

func TestInMemoryEventBus_WildcardHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	all := newTestHandler("all")
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent("A", uuid.New()),
		newTestEvent("B", uuid.New()),
	))

	assert.Len(t, all.getHandled(), 2)
}

func TestInMemoryEventBus_HandlerFailure(t *testing.T) {
	t.Run("error does not stop other handlers", func(t *testing.T) {
		failures := &recordingFailures{}
		bus := NewInMemoryEventBus(zap.NewNop(), WithFailureRecorder(failures))

		failing := newTestHandler("failing", "TestEvent")
		failing.setError(errors.New("boom"))
		healthy := newTestHandler("healthy", "TestEvent")
		bus.Subscribe(failing)
		bus.Subscribe(healthy)

		event := newTestEvent("TestEvent", uuid.New())
		err := bus.Publish(WithPosition(context.Background(), 42), event)

		require.NoError(t, err)
		assert.Len(t, healthy.getHandled(), 1)

		recorded := failures.all()
		require.Len(t, recorded, 1)
		assert.Equal(t, shared.FailureKindProjection, recorded[0].Kind)
		assert.Equal(t, "failing", recorded[0].Handler)
		assert.Equal(t, event.EventID(), recorded[0].EventID)
		assert.Equal(t, event.TenantID(), recorded[0].TenantID)
		assert.Equal(t, int64(42), recorded[0].Position)
		assert.Equal(t, "boom", recorded[0].LastError)
	})

	t.Run("panic is recovered and recorded", func(t *testing.T) {
		failures := &recordingFailures{}
		bus := NewInMemoryEventBus(zap.NewNop(), WithFailureRecorder(failures))

		panicking := newTestHandler("panicking", "TestEvent")
		panicking.panicMsg = "nil map"
		after := newTestHandler("after", "TestEvent")
		bus.Subscribe(panicking)
		bus.Subscribe(after)

		require.NotPanics(t, func() {
			_ = bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New()))
		})
		assert.Len(t, after.getHandled(), 1)

		recorded := failures.all()
		require.Len(t, recorded, 1)
		assert.Contains(t, recorded[0].LastError, "nil map")
	})

	t.Run("recorder error is swallowed", func(t *testing.T) {
		failures := &recordingFailures{err: errors.New("db down")}
		bus := NewInMemoryEventBus(zap.NewNop(), WithFailureRecorder(failures))
		failing := newTestHandler("failing", "TestEvent")
		failing.setError(errors.New("boom"))
		bus.Subscribe(failing)

		assert.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New())))
		assert.Len(t, failures.all(), 1)
	})

	t.Run("without recorder", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		failing := newTestHandler("failing", "TestEvent")
		failing.setError(errors.New("boom"))
		bus.Subscribe(failing)

		assert.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New())))
	})
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("h", "TestEvent")
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New())))

	assert.Empty(t, handler.getHandled())
	assert.Empty(t, bus.Handlers())
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, bus.Start(ctx))
	assert.True(t, bus.IsRunning())

	require.NoError(t, bus.Stop(ctx))
	assert.False(t, bus.IsRunning())
}
