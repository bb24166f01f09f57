package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattica-ai/chaincore/internal/store"
)

func TestMultiNotifierFansOut(t *testing.T) {
	var first, second []string
	m := MultiNotifier{
		NotifierFunc(func(ctx context.Context, msg *store.AgentMessage) error {
			first = append(first, msg.ID)
			return nil
		}),
		nil, // nil entries are skipped
		NotifierFunc(func(ctx context.Context, msg *store.AgentMessage) error {
			second = append(second, msg.ID)
			return nil
		}),
	}

	require.NoError(t, m.Notify(context.Background(), &store.AgentMessage{ID: "m1"}))
	assert.Equal(t, []string{"m1"}, first)
	assert.Equal(t, []string{"m1"}, second)
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	failed := errors.New("transport down")
	var delivered bool
	m := MultiNotifier{
		NotifierFunc(func(ctx context.Context, msg *store.AgentMessage) error {
			return failed
		}),
		NotifierFunc(func(ctx context.Context, msg *store.AgentMessage) error {
			delivered = true
			return nil
		}),
	}

	err := m.Notify(context.Background(), &store.AgentMessage{ID: "m1"})
	assert.ErrorIs(t, err, failed)
	assert.True(t, delivered, "later notifiers still run after a failure")
}

func TestBoundNotifier(t *testing.T) {
	b := &BoundNotifier{}

	// Unbound: messages are accepted without delivery.
	require.NoError(t, b.Notify(context.Background(), &store.AgentMessage{ID: "m1"}))

	var got string
	b.Bind(NotifierFunc(func(ctx context.Context, msg *store.AgentMessage) error {
		got = msg.ID
		return nil
	}))

	require.NoError(t, b.Notify(context.Background(), &store.AgentMessage{ID: "m2"}))
	assert.Equal(t, "m2", got)
}
