package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startTestNATS(t *testing.T) *EmbeddedNATSServer {
	t.Helper()
	srv, err := StartEmbeddedNATSServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)
	return srv
}

func newTestNATSBus(t *testing.T, url string, opts ...BusOption) *NATSEventBus {
	t.Helper()
	serializer := NewEventSerializer()
	serializer.Register("TestEvent", &testEvent{})

	cfg := DefaultNATSConfig()
	cfg.URL = url
	cfg.FetchWait = 100 * time.Millisecond
	bus, err := NewNATSEventBus(cfg, serializer, zap.NewNop(), opts...)
	require.NoError(t, err)
	return bus
}

func stopBus(t *testing.T, bus *NATSEventBus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))
}

func TestNATSEventBus_PublishAndDeliver(t *testing.T) {
	srv := startTestNATS(t)
	bus := newTestNATSBus(t, srv.URL())

	handler := newTestHandler("projection", "TestEvent")
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))
	defer stopBus(t, bus)

	tenantID := uuid.New()
	first := newTestEvent("TestEvent", tenantID)
	second := newTestEvent("TestEvent", tenantID)
	require.NoError(t, bus.Publish(WithPosition(context.Background(), 11), first))
	require.NoError(t, bus.Publish(WithPosition(context.Background(), 12), second))

	require.Eventually(t, func() bool { return len(handler.getHandled()) == 2 }, 5*time.Second, 20*time.Millisecond)

	handled := handler.getHandled()
	assert.Equal(t, first.EventID(), handled[0].EventID())
	assert.Equal(t, second.EventID(), handled[1].EventID())
	assert.Equal(t, "test data", handled[0].(*testEvent).Data)
	assert.Equal(t, []int64{11, 12}, handler.getPositions())
}

func TestNATSEventBus_DuplicatePublishIsDropped(t *testing.T) {
	srv := startTestNATS(t)
	bus := newTestNATSBus(t, srv.URL())

	handler := newTestHandler("projection", "TestEvent")
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))
	defer stopBus(t, bus)

	event := newTestEvent("TestEvent", uuid.New())
	marker := newTestEvent("TestEvent", uuid.New())
	require.NoError(t, bus.Publish(context.Background(), event))
	require.NoError(t, bus.Publish(context.Background(), event))
	require.NoError(t, bus.Publish(context.Background(), marker))

	require.Eventually(t, func() bool {
		handled := handler.getHandled()
		return len(handled) > 0 && handled[len(handled)-1].EventID() == marker.EventID()
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, handler.getHandled(), 2)
}

func TestNATSEventBus_HandlerFailureIsRecordedAndAcked(t *testing.T) {
	srv := startTestNATS(t)
	failures := &recordingFailures{}
	bus := newTestNATSBus(t, srv.URL(), WithFailureRecorder(failures))

	failing := newTestHandler("failing", "TestEvent")
	failing.setError(errors.New("boom"))
	bus.Subscribe(failing)
	require.NoError(t, bus.Start(context.Background()))
	defer stopBus(t, bus)

	require.NoError(t, bus.Publish(WithPosition(context.Background(), 5), newTestEvent("TestEvent", uuid.New())))

	require.Eventually(t, func() bool { return len(failures.all()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int64(5), failures.all()[0].Position)

	// acked, so it is not redelivered
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, failing.getHandled(), 1)
}

func TestNATSEventBus_Subject(t *testing.T) {
	srv := startTestNATS(t)
	bus := newTestNATSBus(t, srv.URL())
	defer stopBus(t, bus)

	event := newTestEvent("TestEvent", uuid.New())
	assert.Equal(t, "ledger."+event.TenantID().String()+".TestAggregate", bus.Subject(event))
}

func TestNATSEventBus_DurableConsumerSurvivesRestart(t *testing.T) {
	srv := startTestNATS(t)

	bus := newTestNATSBus(t, srv.URL())
	require.NoError(t, bus.Start(context.Background()))
	stopBus(t, bus)

	nc, err := nats.Connect(srv.URL())
	require.NoError(t, err)
	defer nc.Close()
	js, err := nc.JetStream()
	require.NoError(t, err)

	info, err := js.ConsumerInfo(DefaultNATSConfig().StreamName, DefaultNATSConfig().Durable)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Config.MaxAckPending)
	assert.Equal(t, nats.AckExplicitPolicy, info.Config.AckPolicy)

	// events published while no worker runs are delivered once it is back
	publisher := newTestNATSBus(t, srv.URL())
	event := newTestEvent("TestEvent", uuid.New())
	require.NoError(t, publisher.Publish(context.Background(), event))

	handler := newTestHandler("projection", "TestEvent")
	publisher.Subscribe(handler)
	require.NoError(t, publisher.Start(context.Background()))
	defer stopBus(t, publisher)

	require.Eventually(t, func() bool { return len(handler.getHandled()) == 1 }, 5*time.Second, 20*time.Millisecond)
}
