package event

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingResetter struct {
	reset []string
	err   error
}

func (r *recordingResetter) ResetProjection(_ context.Context, projection string) error {
	r.reset = append(r.reset, projection)
	return r.err
}

func TestReplayer_Rebuild(t *testing.T) {
	ctx := context.Background()

	t.Run("resets then replays only the given handlers", func(t *testing.T) {
		source := &sliceSource{}
		tenantID := uuid.New()
		source.append(newTestEvent("A", tenantID), newTestEvent("B", tenantID), newTestEvent("A", tenantID))

		resetter := &recordingResetter{}
		replayer := NewReplayer(source, resetter, zap.NewNop())
		accountView := newTestHandler("account-view", "A")

		n, err := replayer.Rebuild(ctx, accountView)
		require.NoError(t, err)

		assert.Equal(t, 3, n)
		assert.Equal(t, []string{"account-view"}, resetter.reset)
		assert.Len(t, accountView.getHandled(), 2)
		assert.Equal(t, []int64{1, 3}, accountView.getPositions())
	})

	t.Run("reset failure aborts", func(t *testing.T) {
		source := &sliceSource{}
		source.append(newTestEvent("A", uuid.New()))
		resetter := &recordingResetter{err: errors.New("locked")}
		handler := newTestHandler("account-view", "A")

		_, err := NewReplayer(source, resetter, zap.NewNop()).Rebuild(ctx, handler)

		assert.ErrorContains(t, err, "locked")
		assert.Empty(t, handler.getHandled())
	})

	t.Run("no handlers is a no-op", func(t *testing.T) {
		n, err := NewReplayer(&sliceSource{}, nil, zap.NewNop()).Rebuild(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("handler failures are recorded, not returned", func(t *testing.T) {
		source := &sliceSource{}
		source.append(newTestEvent("A", uuid.New()))
		failures := &recordingFailures{}
		handler := newTestHandler("account-view", "A")
		handler.setError(errors.New("bad row"))

		n, err := NewReplayer(source, nil, zap.NewNop(), WithFailureRecorder(failures)).Rebuild(ctx, handler)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, failures.all(), 1)
		assert.Equal(t, int64(1), failures.all()[0].Position)
	})
}

func TestReplayer_RebuildStream(t *testing.T) {
	source := &sliceSource{}
	tenantID := uuid.New()
	target := newTestEvent("A", tenantID)
	other := newTestEvent("A", tenantID)
	source.append(target, other)

	resetter := &recordingResetter{}
	handler := newTestHandler("invoice-view", "A")
	n, err := NewReplayer(source, resetter, zap.NewNop()).RebuildStream(context.Background(), StreamOfEvent(target), handler)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, resetter.reset)
	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, target.EventID(), handler.getHandled()[0].EventID())
}
