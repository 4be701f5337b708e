package event

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serializerTestEvent is a test event for serializer tests
type serializerTestEvent struct {
	shared.BaseDomainEvent
	Data    string `json:"data"`
	Counter int    `json:"counter"`
}

func newSerializerTestEvent() *serializerTestEvent {
	return &serializerTestEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("SerializerTestEvent", "TestAggregate", uuid.New(), uuid.New()),
		Data:            "test data",
		Counter:         42,
	}
}

func TestEventSerializer_Register(t *testing.T) {
	serializer := NewEventSerializer()

	serializer.Register("SerializerTestEvent", &serializerTestEvent{})

	assert.True(t, serializer.IsRegistered("SerializerTestEvent"))
	assert.False(t, serializer.IsRegistered("UnknownEvent"))

	v, ok := serializer.CurrentVersion("SerializerTestEvent")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestEventSerializer_RegisteredTypes(t *testing.T) {
	serializer := NewEventSerializer()

	serializer.Register("Event2", &serializerTestEvent{})
	serializer.Register("Event1", &serializerTestEvent{})

	assert.Equal(t, []string{"Event1", "Event2"}, serializer.RegisteredTypes())
}

func TestEventSerializer_RoundTrip(t *testing.T) {
	serializer := NewEventSerializer()
	serializer.Register("SerializerTestEvent", &serializerTestEvent{})

	original := newSerializerTestEvent()
	data, err := serializer.Serialize(original)
	require.NoError(t, err)

	decoded, err := serializer.Deserialize("SerializerTestEvent", data)
	require.NoError(t, err)

	got, ok := decoded.(*serializerTestEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), got.EventID())
	assert.Equal(t, original.TenantID(), got.TenantID())
	assert.Equal(t, original.AggregateID(), got.AggregateID())
	assert.Equal(t, "test data", got.Data)
	assert.Equal(t, 42, got.Counter)
}

func TestEventSerializer_DeserializeErrors(t *testing.T) {
	serializer := NewEventSerializer()
	serializer.Register("SerializerTestEvent", &serializerTestEvent{})

	t.Run("unknown event type", func(t *testing.T) {
		_, err := serializer.Deserialize("Nope", []byte(`{}`))
		assert.ErrorContains(t, err, "unknown event type")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := serializer.Deserialize("SerializerTestEvent", []byte(`{not json`))
		assert.Error(t, err)
	})
}

func TestEventSerializer_Upgrade(t *testing.T) {
	newSerializer := func(t *testing.T) *EventSerializer {
		t.Helper()
		s := NewEventSerializer()
		s.Register("SerializerTestEvent", &serializerTestEvent{})
		// v1 stored the payload under "payload"
		require.NoError(t, s.RegisterUpgrader("SerializerTestEvent", NewFuncUpgrader(1, func(data map[string]any) error {
			data["data"] = data["payload"]
			delete(data, "payload")
			return nil
		})))
		// v2 counted in tens
		require.NoError(t, s.RegisterUpgrader("SerializerTestEvent", NewFuncUpgrader(2, func(data map[string]any) error {
			if c, ok := data["counter"].(float64); ok {
				data["counter"] = c * 10
			}
			return nil
		})))
		return s
	}

	t.Run("v1 payload runs the full chain", func(t *testing.T) {
		s := newSerializer(t)
		v, _ := s.CurrentVersion("SerializerTestEvent")
		assert.Equal(t, 3, v)

		raw := []byte(`{"id":"` + uuid.NewString() + `","type":"SerializerTestEvent","payload":"legacy","counter":4}`)
		decoded, err := s.Deserialize("SerializerTestEvent", raw)
		require.NoError(t, err)

		got := decoded.(*serializerTestEvent)
		assert.Equal(t, "legacy", got.Data)
		assert.Equal(t, 40, got.Counter)
		assert.Equal(t, 3, got.SchemaVersion())
	})

	t.Run("v2 payload skips the first step", func(t *testing.T) {
		s := newSerializer(t)
		raw := []byte(`{"type":"SerializerTestEvent","schema_version":2,"data":"kept","counter":5}`)
		decoded, err := s.Deserialize("SerializerTestEvent", raw)
		require.NoError(t, err)

		got := decoded.(*serializerTestEvent)
		assert.Equal(t, "kept", got.Data)
		assert.Equal(t, 50, got.Counter)
	})

	t.Run("current payload is not touched", func(t *testing.T) {
		s := newSerializer(t)
		raw := []byte(`{"type":"SerializerTestEvent","schema_version":3,"data":"new","counter":7}`)
		decoded, err := s.Deserialize("SerializerTestEvent", raw)
		require.NoError(t, err)
		assert.Equal(t, 7, decoded.(*serializerTestEvent).Counter)
	})

	t.Run("transform error is reported", func(t *testing.T) {
		s := NewEventSerializer()
		s.Register("SerializerTestEvent", &serializerTestEvent{})
		require.NoError(t, s.RegisterUpgrader("SerializerTestEvent", NewFuncUpgrader(1, func(map[string]any) error {
			return errors.New("bad shape")
		})))

		_, err := s.Deserialize("SerializerTestEvent", []byte(`{"data":"x"}`))
		assert.ErrorContains(t, err, "bad shape")
	})
}

func TestEventSerializer_RegisterUpgraderValidation(t *testing.T) {
	s := NewEventSerializer()
	s.Register("SerializerTestEvent", &serializerTestEvent{})

	assert.Error(t, s.RegisterUpgrader("Unknown", NewFuncUpgrader(1, func(map[string]any) error { return nil })))
	assert.Error(t, s.RegisterUpgrader("SerializerTestEvent", skippingUpgrader{}))
}

type skippingUpgrader struct{}

func (skippingUpgrader) SourceVersion() int { return 1 }
func (skippingUpgrader) TargetVersion() int { return 3 }
func (skippingUpgrader) Upgrade(payload []byte) ([]byte, error) { return payload, nil }

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"missing field", `{"id":"x"}`, 1},
		{"explicit version", `{"schema_version":4}`, 4},
		{"zero version", `{"schema_version":0}`, 1},
		{"not json", `nope`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractVersion([]byte(tt.payload)))
		})
	}
}

func TestNewLedgerSerializer(t *testing.T) {
	s := NewLedgerSerializer()

	assert.Len(t, s.RegisteredTypes(), 26)
	for _, eventType := range []string{
		finance.EventTypeAccountOpened,
		finance.EventTypeInvoiceApproved,
		finance.EventTypePaymentInvoiceSyncFailed,
		finance.EventTypeJournalEntryReversed,
		finance.EventTypePeriodClosed,
	} {
		assert.True(t, s.IsRegistered(eventType), eventType)
	}

	t.Run("decodes a stored account event", func(t *testing.T) {
		raw, err := json.Marshal(map[string]any{
			"id":             uuid.NewString(),
			"type":           finance.EventTypeAccountRenamed,
			"aggregate_type": finance.AggregateTypeAccount,
			"sequence":       2,
		})
		require.NoError(t, err)

		decoded, err := s.Deserialize(finance.EventTypeAccountRenamed, raw)
		require.NoError(t, err)
		assert.IsType(t, &finance.AccountRenamedEvent{}, decoded)
		assert.Equal(t, int64(2), decoded.Sequence())
	})
}
