package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

func testChain(id string) *Chain {
	return &Chain{
		ID:   id,
		Name: "review-pipeline",
		Steps: []schema.Step{
			{ID: "step-1", AgentID: "agent-a", Name: "analyze"},
			{ID: "step-2", AgentID: "agent-b", Name: "summarize"},
		},
		IsActive:  true,
		CreatedBy: "tester",
	}
}

func TestMemoryStoreChainCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	chain := testChain("chain-1")
	require.NoError(t, s.CreateChain(ctx, chain))

	got, err := s.GetChain(ctx, "chain-1")
	require.NoError(t, err)
	assert.Equal(t, "review-pipeline", got.Name)
	assert.Len(t, got.Steps, 2)
	assert.False(t, got.CreatedAt.IsZero())

	got.Name = "renamed"
	got.IsActive = false
	require.NoError(t, s.UpdateChain(ctx, got))

	updated, err := s.GetChain(ctx, "chain-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.IsActive)

	require.NoError(t, s.DeleteChain(ctx, "chain-1"))
	_, err = s.GetChain(ctx, "chain-1")
	require.Error(t, err)
	var cerr *schema.ChainError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, schema.ErrCodeNotFound, cerr.Code)
}

func TestMemoryStoreChainListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	active := testChain("chain-active")
	require.NoError(t, s.CreateChain(ctx, active))

	inactive := testChain("chain-inactive")
	inactive.IsActive = false
	require.NoError(t, s.CreateChain(ctx, inactive))

	isActive := true
	chains, err := s.ListChains(ctx, ChainFilter{IsActive: &isActive})
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, "chain-active", chains[0].ID)

	all, err := s.ListChains(ctx, ChainFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStoreDeleteChainCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateChain(ctx, testChain("chain-1")))
	require.NoError(t, s.CreateExecution(ctx, &Execution{
		ID: "exec-1", ChainID: "chain-1", Status: schema.ExecutionRunning,
	}))
	require.NoError(t, s.CreateScheduledRun(ctx, &ScheduledRun{
		ID: "sched-1", ChainID: "chain-1", CronExpression: "0 * * * *", Enabled: true,
	}))

	require.NoError(t, s.DeleteChain(ctx, "chain-1"))

	_, err := s.GetExecution(ctx, "exec-1")
	assert.Error(t, err)
	_, err = s.GetScheduledRun(ctx, "sched-1")
	assert.Error(t, err)
}

func TestMemoryStoreExecutionUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateExecution(ctx, &Execution{
		ID:        "exec-1",
		ChainID:   "chain-1",
		Status:    schema.ExecutionRunning,
		Variables: map[string]any{"topic": "dogs"},
	}))

	completed := schema.ExecutionCompleted
	step := 2
	now := time.Now().UTC()
	require.NoError(t, s.UpdateExecution(ctx, "exec-1", ExecutionUpdate{
		Status:      &completed,
		CurrentStep: &step,
		Output:      map[string]any{"summary": "done"},
		StepResults: []schema.StepResult{
			{StepID: "step-1", Status: schema.StepResultSuccess, DurationMs: 120},
		},
		CompletedAt: &now,
	}))

	exec, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionCompleted, exec.Status)
	assert.Equal(t, 2, exec.CurrentStep)
	assert.Equal(t, "done", exec.Output["summary"])
	require.Len(t, exec.StepResults, 1)
	require.NotNil(t, exec.CompletedAt)

	// Untouched fields survive a partial update.
	assert.Equal(t, "dogs", exec.Variables["topic"])

	err = s.UpdateExecution(ctx, "missing", ExecutionUpdate{Status: &completed})
	assert.Error(t, err)
}

func TestMemoryStoreListExecutionsByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, e := range []*Execution{
		{ID: "e1", ChainID: "c1", Status: schema.ExecutionCompleted},
		{ID: "e2", ChainID: "c1", Status: schema.ExecutionFailed},
		{ID: "e3", ChainID: "c2", Status: schema.ExecutionCompleted},
	} {
		require.NoError(t, s.CreateExecution(ctx, e))
	}

	completed := schema.ExecutionCompleted
	execs, err := s.ListExecutions(ctx, ExecutionFilter{ChainID: "c1", Status: &completed})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "e1", execs[0].ID)
}

func TestMemoryStoreEventsOrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i, typ := range []string{schema.EventExecutionStarted, schema.EventStepStarted, schema.EventStepCompleted} {
		require.NoError(t, s.AppendEvent(ctx, &Event{
			ExecutionID: "exec-1",
			Type:        typ,
			Sequence:    int64(i),
		}))
	}
	require.NoError(t, s.AppendEvent(ctx, &Event{ExecutionID: "exec-other", Type: schema.EventExecutionStarted}))

	events, err := s.GetEvents(ctx, "exec-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, schema.EventExecutionStarted, events[0].Type)
	assert.Greater(t, events[1].ID, events[0].ID)

	// Resume from a cursor.
	since, err := s.GetEvents(ctx, "exec-1", events[0].ID)
	require.NoError(t, err)
	assert.Len(t, since, 2)
}

func TestMemoryStoreMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateMessage(ctx, &AgentMessage{
		ID:          "msg-1",
		FromAgentID: "agent-a",
		ToAgentID:   "agent-b",
		Type:        "task_handoff",
		Content:     map[string]any{"task": "review"},
		Status:      schema.MessagePending,
		Priority:    schema.PriorityNormal,
	}))

	delivered := schema.MessageDelivered
	require.NoError(t, s.UpdateMessage(ctx, "msg-1", MessageUpdate{Status: &delivered}))

	msg, err := s.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, schema.MessageDelivered, msg.Status)
	assert.Nil(t, msg.ProcessedAt)

	msgs, err := s.ListMessages(ctx, MessageFilter{ToAgentID: "agent-b", Status: &delivered})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	msgs, err = s.ListMessages(ctx, MessageFilter{ToAgentID: "agent-c"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryStoreAgentRegistryUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.RegisterAgent(ctx, &Agent{ID: "agent-a", Name: "Analyzer", Type: "llm"}))
	first, err := s.GetAgent(ctx, "agent-a")
	require.NoError(t, err)

	require.NoError(t, s.RegisterAgent(ctx, &Agent{ID: "agent-a", Name: "Analyzer v2", Type: "llm"}))
	second, err := s.GetAgent(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, "Analyzer v2", second.Name)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	agents, err := s.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func TestMemoryStoreScheduledRuns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateScheduledRun(ctx, &ScheduledRun{
		ID: "sched-1", ChainID: "chain-1", CronExpression: "*/5 * * * *", Enabled: true,
	}))

	disabled := false
	require.NoError(t, s.UpdateScheduledRun(ctx, "sched-1", ScheduledRunUpdate{
		Enabled:       &disabled,
		LastRunStatus: "completed",
	}))

	run, err := s.GetScheduledRun(ctx, "sched-1")
	require.NoError(t, err)
	assert.False(t, run.Enabled)
	assert.Equal(t, "completed", run.LastRunStatus)

	enabled := true
	runs, err := s.ListScheduledRuns(ctx, ScheduledRunFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Empty(t, runs)

	require.NoError(t, s.DeleteScheduledRun(ctx, "sched-1"))
	assert.Error(t, s.DeleteScheduledRun(ctx, "sched-1"))
}
