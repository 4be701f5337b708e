package shared

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterIncremented struct {
	BaseDomainEvent
	By int `json:"by"`
}

type counter struct {
	EventSourcedAggregate
	total int
}

func newCounter(tenantID uuid.UUID) *counter {
	return &counter{EventSourcedAggregate: NewEventSourcedAggregate("Counter", uuid.New(), tenantID)}
}

func (c *counter) apply(e DomainEvent) error {
	ev, ok := e.(*counterIncremented)
	if !ok {
		return errors.New("unknown event")
	}
	if ev.By < 0 {
		return errors.New("negative increment")
	}
	c.total += ev.By
	return nil
}

func (c *counter) increment(by int) error {
	ev := &counterIncremented{
		BaseDomainEvent: NewBaseDomainEvent("Counter.Incremented", c.AggregateType(), c.AggregateID(), c.TenantID()),
		By:              by,
	}
	return c.Raise(ev, c.apply)
}

func TestEventSourcedAggregate_Raise(t *testing.T) {
	t.Run("increments version exactly once per applied event", func(t *testing.T) {
		c := newCounter(uuid.New())
		require.NoError(t, c.increment(2))
		require.NoError(t, c.increment(3))

		assert.Equal(t, int64(2), c.Version())
		assert.Equal(t, 5, c.total)
		require.Len(t, c.UncommittedEvents(), 2)
		assert.Equal(t, int64(1), c.UncommittedEvents()[0].Sequence())
		assert.Equal(t, int64(2), c.UncommittedEvents()[1].Sequence())
		assert.Equal(t, int64(0), c.PersistedVersion())
		assert.True(t, c.IsNew())
	})

	t.Run("rejected event leaves version and queue untouched", func(t *testing.T) {
		c := newCounter(uuid.New())
		require.NoError(t, c.increment(1))
		require.Error(t, c.increment(-1))

		assert.Equal(t, int64(1), c.Version())
		assert.Len(t, c.UncommittedEvents(), 1)
	})

	t.Run("mark committed clears queue but keeps version", func(t *testing.T) {
		c := newCounter(uuid.New())
		require.NoError(t, c.increment(1))
		c.MarkCommitted()

		assert.Empty(t, c.UncommittedEvents())
		assert.Equal(t, int64(1), c.Version())
		assert.Equal(t, int64(1), c.PersistedVersion())
		assert.False(t, c.IsNew())
	})
}

func TestEventSourcedAggregate_Replay(t *testing.T) {
	tenantID := uuid.New()
	source := newCounter(tenantID)
	require.NoError(t, source.increment(4))
	require.NoError(t, source.increment(6))
	history := source.UncommittedEvents()

	t.Run("replay matches incremental application", func(t *testing.T) {
		replayed := &counter{EventSourcedAggregate: NewEventSourcedAggregate("Counter", uuid.Nil, uuid.Nil)}
		require.NoError(t, replayed.Replay(source.AggregateID(), tenantID, history, replayed.apply))

		assert.Equal(t, source.total, replayed.total)
		assert.Equal(t, source.Version(), replayed.Version())
		assert.Empty(t, replayed.UncommittedEvents())
	})

	t.Run("rejects history of another tenant", func(t *testing.T) {
		replayed := &counter{EventSourcedAggregate: NewEventSourcedAggregate("Counter", uuid.Nil, uuid.Nil)}
		err := replayed.Replay(source.AggregateID(), uuid.New(), history, replayed.apply)
		assert.ErrorIs(t, err, ErrTenantMismatch)
	})

	t.Run("rejects gaps in sequence", func(t *testing.T) {
		replayed := &counter{EventSourcedAggregate: NewEventSourcedAggregate("Counter", uuid.Nil, uuid.Nil)}
		err := replayed.Replay(source.AggregateID(), tenantID, history[1:], replayed.apply)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected sequence 1")
	})
}

func TestDomainError(t *testing.T) {
	t.Run("kinds are classified", func(t *testing.T) {
		assert.True(t, IsValidation(NewValidationError("BAD", "bad")))
		assert.True(t, IsInvariant(ErrOverpayment))
		assert.True(t, IsConflict(ErrConcurrencyConflict))
		assert.True(t, IsNotFound(ErrNotFound))
		assert.False(t, IsConflict(errors.New("plain")))
	})

	t.Run("details keep sentinel identity and appear in message", func(t *testing.T) {
		err := ErrUnbalancedEntry.WithDetail("total_debit", "100.00").WithDetail("total_credit", "90.00")

		assert.ErrorIs(t, err, ErrUnbalancedEntry)
		assert.Equal(t, "Total debits do not equal total credits (total_credit=90.00, total_debit=100.00)", err.Error())
		assert.Empty(t, ErrUnbalancedEntry.Details)
	})
}
