package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattica-ai/chaincore/internal/dispatch"
	"github.com/lattica-ai/chaincore/internal/engine"
	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/internal/validation"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

type fixture struct {
	svc      *Service
	store    store.Store
	executor *engine.ChainExecutor
	release  chan struct{}
}

// newFixture wires a full service over the memory store. The "slow" agent
// blocks until release is closed; every other agent echoes its input.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	release := make(chan struct{})
	agents := engine.AgentExecutorFunc(func(ctx context.Context, agentID string, input map[string]any) (*engine.AgentResult, error) {
		if agentID == "slow" {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return &engine.AgentResult{Output: map[string]any{"echo": agentID}}, nil
	})

	executor, err := engine.NewChainExecutor(s, agents, engine.NewCancelRegistry(), nil, nil, nil)
	require.NoError(t, err)

	validator, err := validation.NewChainValidator(validation.NewStoreAgentLookup(s))
	require.NoError(t, err)

	dispatcher := dispatch.NewDispatcher(s, nil, nil, nil, nil)
	svc := NewService(s, executor, dispatcher, validator, nil)

	for _, id := range []string{"analyzer", "writer", "slow"} {
		require.NoError(t, s.RegisterAgent(ctx, &store.Agent{ID: id, Name: id, Type: "llm"}))
	}

	t.Cleanup(func() { close(release) })
	return &fixture{svc: svc, store: s, executor: executor, release: release}
}

func (f *fixture) createChain(t *testing.T, steps ...schema.Step) *store.Chain {
	t.Helper()
	for i := range steps {
		if steps[i].Name == "" {
			steps[i].Name = steps[i].ID
		}
	}
	chain, err := f.svc.CreateChain(context.Background(), &store.Chain{
		Name:     "pipeline",
		Steps:    steps,
		IsActive: true,
	})
	require.NoError(t, err)
	return chain
}

func (f *fixture) waitDone(t *testing.T, executionID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.executor.WaitForCompletion(ctx, executionID))
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	var cerr *schema.ChainError
	require.ErrorAs(t, err, &cerr)
	return cerr.Code
}

func TestCreateChainAssignsIDAndTimestamps(t *testing.T) {
	f := newFixture(t)

	chain := f.createChain(t, schema.Step{ID: "s1", AgentID: "analyzer"})
	assert.NotEmpty(t, chain.ID)
	assert.False(t, chain.CreatedAt.IsZero())

	got, err := f.svc.GetChain(context.Background(), chain.ID)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", got.Name)
}

func TestCreateChainRejectsInvalidDefinition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateChain(ctx, &store.Chain{Name: "no-steps"})
	assert.Equal(t, schema.ErrCodeValidation, errCode(t, err))

	_, err = f.svc.CreateChain(ctx, &store.Chain{
		Name:  "ghost-agent",
		Steps: []schema.Step{{ID: "s1", AgentID: "nobody", Name: "s1"}},
	})
	assert.Equal(t, schema.ErrCodeValidation, errCode(t, err))
}

func TestGetChainNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetChain(context.Background(), "missing")
	assert.Equal(t, schema.ErrCodeChainNotFound, errCode(t, err))
}

func TestUpdateChainPreservesProvenance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chain := f.createChain(t, schema.Step{ID: "s1", AgentID: "analyzer"})
	created := chain.CreatedAt

	chain.Description = "updated"
	updated, err := f.svc.UpdateChain(ctx, chain)
	require.NoError(t, err)
	assert.Equal(t, created, updated.CreatedAt)
	assert.Equal(t, "updated", updated.Description)

	_, err = f.svc.UpdateChain(ctx, &store.Chain{ID: "missing", Name: "x",
		Steps: []schema.Step{{ID: "s1", AgentID: "analyzer", Name: "s1"}}})
	assert.Equal(t, schema.ErrCodeChainNotFound, errCode(t, err))
}

func TestExecuteChainCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chain := f.createChain(t,
		schema.Step{ID: "s1", AgentID: "analyzer"},
		schema.Step{ID: "s2", AgentID: "writer"},
	)

	exec, err := f.svc.ExecuteChain(ctx, chain.ID, map[string]any{"topic": "dogs"}, nil, "tester")
	require.NoError(t, err)
	f.waitDone(t, exec.ID)

	final, err := f.svc.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionCompleted, final.Status)
	assert.Equal(t, "writer", final.Output["echo"])
}

func TestExecuteChainUnknownChain(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ExecuteChain(context.Background(), "missing", nil, nil, "")
	assert.Equal(t, schema.ErrCodeChainNotFound, errCode(t, err))
}

func TestDeleteChainCancelsRunningExecutions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chain := f.createChain(t, schema.Step{ID: "s1", AgentID: "slow", TimeoutSec: 60})
	exec, err := f.svc.ExecuteChain(ctx, chain.ID, nil, nil, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteChain(ctx, chain.ID))
	f.waitDone(t, exec.ID)

	_, err = f.svc.GetChain(ctx, chain.ID)
	assert.Equal(t, schema.ErrCodeChainNotFound, errCode(t, err))
}

func TestGetChainExecutionsFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chain := f.createChain(t, schema.Step{ID: "s1", AgentID: "analyzer"})
	exec, err := f.svc.ExecuteChain(ctx, chain.ID, nil, nil, "")
	require.NoError(t, err)
	f.waitDone(t, exec.ID)

	completed := schema.ExecutionCompleted
	execs, err := f.svc.GetChainExecutions(ctx, chain.ID, &completed, 0, 0)
	require.NoError(t, err)
	assert.Len(t, execs, 1)

	failed := schema.ExecutionFailed
	execs, err = f.svc.GetChainExecutions(ctx, chain.ID, &failed, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestCancelExecutionUnknown(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CancelExecution(context.Background(), "missing")
	assert.Equal(t, schema.ErrCodeExecutionNotFound, errCode(t, err))
}

func TestSendMessageRequiresRegisteredRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, dispatch.SendRequest{ToAgentID: "stranger", Type: "ping"})
	assert.Equal(t, schema.ErrCodeNotFound, errCode(t, err))

	msg, err := f.svc.SendMessage(ctx, dispatch.SendRequest{
		FromAgentID: "analyzer", ToAgentID: "writer", Type: "ping",
	})
	require.NoError(t, err)

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(drainCtx))

	msgs, err := f.svc.GetAgentMessages(ctx, store.MessageFilter{ToAgentID: "writer"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Equal(t, schema.MessageProcessed, msgs[0].Status)
}

func TestGetChainAnalytics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chain := f.createChain(t, schema.Step{ID: "s1", AgentID: "analyzer"})
	for i := 0; i < 2; i++ {
		exec, err := f.svc.ExecuteChain(ctx, chain.ID, nil, nil, "")
		require.NoError(t, err)
		f.waitDone(t, exec.ID)
	}

	analytics, err := f.svc.GetChainAnalytics(ctx, chain.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, analytics.ExecutionCount)
	assert.Equal(t, 1.0, analytics.SuccessRate)

	_, err = f.svc.GetChainAnalytics(ctx, "missing")
	assert.Equal(t, schema.ErrCodeChainNotFound, errCode(t, err))
}

func TestCreateScheduledRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chain := f.createChain(t, schema.Step{ID: "s1", AgentID: "analyzer"})

	run, err := f.svc.CreateScheduledRun(ctx, &store.ScheduledRun{
		ChainID:        chain.ID,
		CronExpression: "*/5 * * * *",
		Enabled:        true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	require.NotNil(t, run.NextRunAt)
	assert.True(t, run.NextRunAt.After(time.Now().UTC()))

	_, err = f.svc.CreateScheduledRun(ctx, &store.ScheduledRun{
		ChainID: chain.ID, CronExpression: "bad cron",
	})
	assert.Equal(t, schema.ErrCodeValidation, errCode(t, err))

	_, err = f.svc.CreateScheduledRun(ctx, &store.ScheduledRun{
		ChainID: "missing", CronExpression: "* * * * *",
	})
	assert.Equal(t, schema.ErrCodeChainNotFound, errCode(t, err))
}

func TestValidateChainSurfacesWarnings(t *testing.T) {
	f := newFixture(t)

	result := f.svc.ValidateChain(context.Background(), &store.Chain{
		Name: "warned",
		Steps: []schema.Step{
			{ID: "s1", AgentID: "analyzer", Name: "s1",
				Condition: &schema.Condition{Kind: schema.ConditionIfSuccess}},
		},
	})
	assert.True(t, result.Valid())
	assert.NotEmpty(t, result.Warnings)
}
