package mcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistryRegisterAndLookup(t *testing.T) {
	r := NewSessionRegistry()

	_, ok := r.SessionFor("agent-a")
	assert.False(t, ok)

	r.Register("agent-a", "session-1")
	sid, ok := r.SessionFor("agent-a")
	assert.True(t, ok)
	assert.Equal(t, "session-1", sid)

	// Reconnect overwrites the previous session.
	r.Register("agent-a", "session-2")
	sid, _ = r.SessionFor("agent-a")
	assert.Equal(t, "session-2", sid)

	// The displaced session no longer owns the agent: removing it must not
	// disturb the new binding.
	r.Remove("session-1")
	sid, ok = r.SessionFor("agent-a")
	assert.True(t, ok)
	assert.Equal(t, "session-2", sid)
}

func TestSessionRegistryLastSeen(t *testing.T) {
	r := NewSessionRegistry()

	_, ok := r.LastSeen("agent-a")
	assert.False(t, ok)

	first := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	clock := first
	r.now = func() time.Time { return clock }

	r.Register("agent-a", "session-1")
	seen, ok := r.LastSeen("agent-a")
	require.True(t, ok)
	assert.Equal(t, first, seen)

	// Every tool call re-registers and refreshes the timestamp.
	clock = first.Add(time.Minute)
	r.Register("agent-a", "session-1")
	seen, _ = r.LastSeen("agent-a")
	assert.Equal(t, first.Add(time.Minute), seen)
}

func TestSessionRegistryRemoveBySession(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("agent-a", "session-1")
	r.Register("agent-b", "session-1")
	r.Register("agent-c", "session-2")

	r.Remove("session-1")

	_, ok := r.SessionFor("agent-a")
	assert.False(t, ok)
	_, ok = r.SessionFor("agent-b")
	assert.False(t, ok)
	sid, ok := r.SessionFor("agent-c")
	assert.True(t, ok)
	assert.Equal(t, "session-2", sid)
}
