package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

func instantBackoff(r *StepRunner) *StepRunner {
	r.backoff = func(int) time.Duration { return 0 }
	return r
}

func TestStepRunnerSuccess(t *testing.T) {
	agent := AgentExecutorFunc(func(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error) {
		assert.Equal(t, "agent-a", agentID)
		assert.Equal(t, "dogs", input["topic"])
		return &AgentResult{Output: map[string]any{"summary": "ok"}, TokenCount: 17}, nil
	})
	r := NewStepRunner(agent, nil, nil)

	step := &schema.Step{ID: "s1", AgentID: "agent-a", Name: "summarize"}
	result, err := r.Run(context.Background(), "exec-1", step, map[string]any{"topic": "dogs"})
	require.NoError(t, err)

	assert.Equal(t, schema.StepResultSuccess, result.Status)
	assert.Equal(t, "ok", result.Output["summary"])
	assert.Equal(t, 17, result.TokenCount)
	assert.Empty(t, result.Error)
}

func TestStepRunnerTimeoutMessage(t *testing.T) {
	agent := AgentExecutorFunc(func(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := NewStepRunner(agent, nil, nil)

	step := &schema.Step{ID: "stepA", AgentID: "slow-agent", Name: "stepA", TimeoutSec: 1}
	result, err := r.Run(context.Background(), "exec-1", step, nil)

	require.Error(t, err)
	assert.Equal(t, schema.StepResultError, result.Status)
	assert.Contains(t, result.Error, "timed out after 1 seconds")

	var cerr *schema.ChainError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, schema.ErrCodeTimeout, cerr.Code)
	assert.Equal(t, "stepA", cerr.StepID)
}

func TestStepRunnerAgentFailure(t *testing.T) {
	agent := AgentExecutorFunc(func(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error) {
		return nil, schema.NewError(schema.ErrCodeValidation, "malformed prompt")
	})
	r := NewStepRunner(agent, nil, nil)

	step := &schema.Step{ID: "s1", AgentID: "agent-a", Name: "analyze"}
	result, err := r.Run(context.Background(), "exec-1", step, nil)

	require.Error(t, err)
	assert.Equal(t, schema.StepResultError, result.Status)
	assert.Contains(t, result.Error, "malformed prompt")
	assert.Contains(t, result.Error, `step "analyze" failed`)
	assert.GreaterOrEqual(t, result.DurationMs, int64(0))
}

func TestStepRunnerRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	agent := AgentExecutorFunc(func(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return &AgentResult{Output: map[string]any{"ok": true}}, nil
	})
	s := store.NewMemoryStore()
	r := instantBackoff(NewStepRunner(agent, s, nil))

	step := &schema.Step{ID: "s1", AgentID: "agent-a", RetryCount: 3}
	result, err := r.Run(context.Background(), "exec-1", step, nil)

	require.NoError(t, err)
	assert.Equal(t, schema.StepResultSuccess, result.Status)
	assert.EqualValues(t, 3, attempts.Load())

	// One step_retrying event per re-attempt.
	events, err := s.GetEvents(context.Background(), "exec-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, schema.EventStepRetrying, e.Type)
		assert.Equal(t, "s1", e.StepID)
	}
}

func TestStepRunnerRetryCountExhausted(t *testing.T) {
	var attempts atomic.Int32
	agent := AgentExecutorFunc(func(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error) {
		attempts.Add(1)
		return nil, errors.New("service unavailable")
	})
	r := instantBackoff(NewStepRunner(agent, nil, nil))

	step := &schema.Step{ID: "s1", AgentID: "agent-a", RetryCount: 2}
	_, err := r.Run(context.Background(), "exec-1", step, nil)

	require.Error(t, err)
	assert.EqualValues(t, 3, attempts.Load(), "initial attempt plus retryCount re-attempts")
}

func TestStepRunnerNonRetryableFailsFast(t *testing.T) {
	var attempts atomic.Int32
	agent := AgentExecutorFunc(func(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error) {
		attempts.Add(1)
		return nil, schema.NewError(schema.ErrCodeValidation, "bad input schema")
	})
	r := instantBackoff(NewStepRunner(agent, nil, nil))

	step := &schema.Step{ID: "s1", AgentID: "agent-a", RetryCount: 5}
	_, err := r.Run(context.Background(), "exec-1", step, nil)

	require.Error(t, err)
	assert.EqualValues(t, 1, attempts.Load())
}

func TestStepRunnerZeroRetryCountSingleAttempt(t *testing.T) {
	var attempts atomic.Int32
	agent := AgentExecutorFunc(func(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error) {
		attempts.Add(1)
		return nil, errors.New("connection reset")
	})
	r := instantBackoff(NewStepRunner(agent, nil, nil))

	step := &schema.Step{ID: "s1", AgentID: "agent-a"}
	_, err := r.Run(context.Background(), "exec-1", step, nil)

	require.Error(t, err)
	assert.EqualValues(t, 1, attempts.Load())
}

func TestStepRunnerContextCancelled(t *testing.T) {
	agent := AgentExecutorFunc(func(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := NewStepRunner(agent, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	step := &schema.Step{ID: "s1", AgentID: "agent-a", TimeoutSec: 60, RetryCount: 5}
	result, err := r.Run(ctx, "exec-1", step, nil)

	require.Error(t, err)
	assert.Equal(t, schema.StepResultError, result.Status)
	var cerr *schema.ChainError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, schema.ErrCodeCancelled, cerr.Code)
}

func TestStepRunnerDefaultTimeoutApplied(t *testing.T) {
	step := &schema.Step{ID: "s1", AgentID: "agent-a"}
	assert.Equal(t, schema.DefaultStepTimeout, step.Timeout())

	step.TimeoutSec = 5
	assert.Equal(t, 5*time.Second, step.Timeout())
}
