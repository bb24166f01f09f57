package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelRegistryLifecycle(t *testing.T) {
	r := NewCancelRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Register("exec-1", cancel))
	assert.Equal(t, []string{"exec-1"}, r.Running())

	// Double registration is a conflict.
	assert.Error(t, r.Register("exec-1", cancel))

	assert.True(t, r.Cancel("exec-1"))
	<-ctx.Done()

	r.Release("exec-1")
	assert.Empty(t, r.Running())

	// Cancelling an unknown execution reports false.
	assert.False(t, r.Cancel("exec-1"))
}

func TestCancelRegistryWait(t *testing.T) {
	r := NewCancelRegistry()

	_, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Register("exec-1", cancel))

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Release("exec-1")
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.NoError(t, r.Wait(waitCtx, "exec-1"))

	// Waiting on an unknown execution returns immediately.
	assert.NoError(t, r.Wait(waitCtx, "exec-unknown"))
}

func TestCancelRegistryWaitTimeout(t *testing.T) {
	r := NewCancelRegistry()

	_, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Register("exec-1", cancel))
	defer r.Release("exec-1")

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	assert.ErrorIs(t, r.Wait(waitCtx, "exec-1"), context.DeadlineExceeded)
}

func TestCancelRegistryCancelAll(t *testing.T) {
	r := NewCancelRegistry()

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	require.NoError(t, r.Register("exec-1", cancel1))
	require.NoError(t, r.Register("exec-2", cancel2))

	r.CancelAll()
	<-ctx1.Done()
	<-ctx2.Done()

	// Entries remain until released by their owners.
	assert.Len(t, r.Running(), 2)
}

func TestRegistriesAreIsolated(t *testing.T) {
	r1 := NewCancelRegistry()
	r2 := NewCancelRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r1.Register("exec-1", cancel))

	assert.False(t, r2.Cancel("exec-1"))
	assert.NoError(t, ctx.Err())
}
