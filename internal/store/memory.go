package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation. It is used by unit
// tests and by the server when no database path is configured.
type MemoryStore struct {
	mu            sync.RWMutex
	chains        map[string]*Chain
	executions    map[string]*Execution
	events        []*Event
	nextEventID   int64
	messages      map[string]*AgentMessage
	agents        map[string]*Agent
	scheduledRuns map[string]*ScheduledRun
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chains:        make(map[string]*Chain),
		executions:    make(map[string]*Execution),
		messages:      make(map[string]*AgentMessage),
		agents:        make(map[string]*Agent),
		scheduledRuns: make(map[string]*ScheduledRun),
		nextEventID:   1,
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                      { return nil }

// --- Chains ---

func (s *MemoryStore) CreateChain(ctx context.Context, chain *Chain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *chain
	c.CreatedAt = timeOrNow(c.CreatedAt)
	c.UpdatedAt = timeOrNow(c.UpdatedAt)
	s.chains[c.ID] = &c
	return nil
}

func (s *MemoryStore) GetChain(ctx context.Context, id string) (*Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain, ok := s.chains[id]
	if !ok {
		return nil, storeNotFound("chain", id)
	}
	c := *chain
	return &c, nil
}

func (s *MemoryStore) UpdateChain(ctx context.Context, chain *Chain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.chains[chain.ID]
	if !ok {
		return storeNotFound("chain", chain.ID)
	}
	c := *chain
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.chains[c.ID] = &c
	return nil
}

func (s *MemoryStore) ListChains(ctx context.Context, filter ChainFilter) ([]*Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chains []*Chain
	for _, chain := range s.chains {
		if filter.IsActive != nil && chain.IsActive != *filter.IsActive {
			continue
		}
		if filter.CreatedBy != "" && chain.CreatedBy != filter.CreatedBy {
			continue
		}
		c := *chain
		chains = append(chains, &c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].CreatedAt.After(chains[j].CreatedAt) })
	return paginate(chains, filter.Limit, filter.Offset), nil
}

func (s *MemoryStore) DeleteChain(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chains[id]; !ok {
		return storeNotFound("chain", id)
	}
	delete(s.chains, id)
	for execID, exec := range s.executions {
		if exec.ChainID == id {
			delete(s.executions, execID)
		}
	}
	for runID, run := range s.scheduledRuns {
		if run.ChainID == id {
			delete(s.scheduledRuns, runID)
		}
	}
	return nil
}

// --- Executions ---

func (s *MemoryStore) CreateExecution(ctx context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *exec
	e.StartedAt = timeOrNow(e.StartedAt)
	s.executions[e.ID] = &e
	return nil
}

func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, storeNotFound("execution", id)
	}
	e := *exec
	return &e, nil
}

func (s *MemoryStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return storeNotFound("execution", id)
	}
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.CurrentStep != nil {
		exec.CurrentStep = *update.CurrentStep
	}
	if update.Output != nil {
		exec.Output = update.Output
	}
	if update.Variables != nil {
		exec.Variables = update.Variables
	}
	if update.StepResults != nil {
		exec.StepResults = update.StepResults
	}
	if update.ErrorMessage != nil {
		exec.ErrorMessage = *update.ErrorMessage
	}
	if update.CompletedAt != nil {
		exec.CompletedAt = update.CompletedAt
	}
	return nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var execs []*Execution
	for _, exec := range s.executions {
		if filter.ChainID != "" && exec.ChainID != filter.ChainID {
			continue
		}
		if filter.Status != nil && exec.Status != *filter.Status {
			continue
		}
		e := *exec
		execs = append(execs, &e)
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].StartedAt.After(execs[j].StartedAt) })
	return paginate(execs, filter.Limit, filter.Offset), nil
}

// --- Events ---

func (s *MemoryStore) AppendEvent(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	e.ID = s.nextEventID
	s.nextEventID++
	e.Timestamp = timeOrNow(e.Timestamp)
	s.events = append(s.events, &e)
	event.ID = e.ID
	return nil
}

func (s *MemoryStore) GetEvents(ctx context.Context, executionID string, since int64) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []*Event
	for _, event := range s.events {
		if event.ExecutionID != executionID || event.ID <= since {
			continue
		}
		e := *event
		events = append(events, &e)
	}
	return events, nil
}

// --- Agent messages ---

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *AgentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *msg
	m.CreatedAt = timeOrNow(m.CreatedAt)
	s.messages[m.ID] = &m
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*AgentMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, storeNotFound("message", id)
	}
	m := *msg
	return &m, nil
}

func (s *MemoryStore) UpdateMessage(ctx context.Context, id string, update MessageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return storeNotFound("message", id)
	}
	if update.Status != nil {
		msg.Status = *update.Status
	}
	if update.ProcessedAt != nil {
		msg.ProcessedAt = update.ProcessedAt
	}
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, filter MessageFilter) ([]*AgentMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var msgs []*AgentMessage
	for _, msg := range s.messages {
		if filter.ToAgentID != "" && msg.ToAgentID != filter.ToAgentID {
			continue
		}
		if filter.FromAgentID != "" && msg.FromAgentID != filter.FromAgentID {
			continue
		}
		if filter.Status != nil && msg.Status != *filter.Status {
			continue
		}
		if filter.Type != "" && msg.Type != filter.Type {
			continue
		}
		m := *msg
		msgs = append(msgs, &m)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	return paginate(msgs, filter.Limit, 0), nil
}

// --- Agents ---

func (s *MemoryStore) RegisterAgent(ctx context.Context, agent *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *agent
	if existing, ok := s.agents[a.ID]; ok {
		a.CreatedAt = existing.CreatedAt
	} else {
		a.CreatedAt = timeOrNow(a.CreatedAt)
	}
	s.agents[a.ID] = &a
	return nil
}

func (s *MemoryStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, storeNotFound("agent", id)
	}
	a := *agent
	return &a, nil
}

func (s *MemoryStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var agents []*Agent
	for _, agent := range s.agents {
		a := *agent
		agents = append(agents, &a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].CreatedAt.Before(agents[j].CreatedAt) })
	return agents, nil
}

// --- Scheduled runs ---

func (s *MemoryStore) CreateScheduledRun(ctx context.Context, run *ScheduledRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *run
	r.CreatedAt = timeOrNow(r.CreatedAt)
	s.scheduledRuns[r.ID] = &r
	return nil
}

func (s *MemoryStore) GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.scheduledRuns[id]
	if !ok {
		return nil, storeNotFound("scheduled run", id)
	}
	r := *run
	return &r, nil
}

func (s *MemoryStore) UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.scheduledRuns[id]
	if !ok {
		return storeNotFound("scheduled run", id)
	}
	if update.Enabled != nil {
		run.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		run.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		run.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != "" {
		run.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (s *MemoryStore) ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var runs []*ScheduledRun
	for _, run := range s.scheduledRuns {
		if filter.Enabled != nil && run.Enabled != *filter.Enabled {
			continue
		}
		if filter.ChainID != "" && run.ChainID != filter.ChainID {
			continue
		}
		r := *run
		runs = append(runs, &r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	return paginate(runs, filter.Limit, 0), nil
}

func (s *MemoryStore) DeleteScheduledRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scheduledRuns[id]; !ok {
		return storeNotFound("scheduled run", id)
	}
	delete(s.scheduledRuns, id)
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
