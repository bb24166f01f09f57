package mcp

import (
	"sync"
	"time"
)

// presence is one live binding: the MCP session currently speaking for an
// agent, and when that agent last called a tool through it.
type presence struct {
	sessionID string
	lastSeen  time.Time
}

// SessionRegistry tracks which MCP session currently speaks for each agent,
// so dispatched messages can be pushed to the agent's live connection.
// Bindings are refreshed on every tool call that carries an agent_id; a
// reconnecting agent displaces its previous session. A reverse index by
// session keeps disconnect cleanup from scanning every agent.
type SessionRegistry struct {
	mu        sync.RWMutex
	byAgent   map[string]presence
	bySession map[string]map[string]struct{}
	now       func() time.Time
}

// NewSessionRegistry creates an empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byAgent:   make(map[string]presence),
		bySession: make(map[string]map[string]struct{}),
		now:       time.Now,
	}
}

// Register binds agentID to sessionID, displacing any previous binding for
// the agent, and refreshes the agent's last-seen time.
func (r *SessionRegistry) Register(agentID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byAgent[agentID]; ok && prev.sessionID != sessionID {
		r.dropFromSession(prev.sessionID, agentID)
	}
	r.byAgent[agentID] = presence{sessionID: sessionID, lastSeen: r.now()}

	agents, ok := r.bySession[sessionID]
	if !ok {
		agents = make(map[string]struct{})
		r.bySession[sessionID] = agents
	}
	agents[agentID] = struct{}{}
}

// SessionFor returns the session currently bound to the agent, if any.
func (r *SessionRegistry) SessionFor(agentID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byAgent[agentID]
	return p.sessionID, ok
}

// LastSeen returns when the agent last called a tool over its current
// session. The zero time and false mean the agent is not connected.
func (r *SessionRegistry) LastSeen(agentID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byAgent[agentID]
	return p.lastSeen, ok
}

// Remove unbinds every agent attached to the session. Called when a session
// disconnects or a push to it fails with an unknown-session error.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for agentID := range r.bySession[sessionID] {
		delete(r.byAgent, agentID)
	}
	delete(r.bySession, sessionID)
}

// dropFromSession removes one agent from a session's reverse index.
// Caller holds the write lock.
func (r *SessionRegistry) dropFromSession(sessionID, agentID string) {
	agents, ok := r.bySession[sessionID]
	if !ok {
		return
	}
	delete(agents, agentID)
	if len(agents) == 0 {
		delete(r.bySession, sessionID)
	}
}
