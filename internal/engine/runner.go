package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// AgentResult is what an agent invocation produces on success.
type AgentResult struct {
	Output     map[string]any `json:"output,omitempty"`
	TokenCount int            `json:"token_count,omitempty"`
}

// AgentExecutor invokes a named agent with an input object. Implementations
// may take arbitrary wall-clock time; the StepRunner enforces the deadline.
type AgentExecutor interface {
	Invoke(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error)
}

// AgentExecutorFunc adapts a function to the AgentExecutor interface.
type AgentExecutorFunc func(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error)

// Invoke calls f.
func (f AgentExecutorFunc) Invoke(ctx context.Context, agentID string, input map[string]any) (*AgentResult, error) {
	return f(ctx, agentID, input)
}

// StepRunner executes a single step against the AgentExecutor under the
// step's deadline, retrying transient failures up to the step's retryCount
// with exponential backoff. A step_retrying event is emitted per re-attempt.
type StepRunner struct {
	agents  AgentExecutor
	events  EventAppender
	logger  *slog.Logger
	backoff func(attempt int) time.Duration
}

// NewStepRunner creates a StepRunner.
func NewStepRunner(agents AgentExecutor, events EventAppender, logger *slog.Logger) *StepRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepRunner{agents: agents, events: events, logger: logger, backoff: ComputeBackoff}
}

// Run invokes the step's agent with the resolved input and returns a
// normalized StepResult. The returned error is non-nil exactly when the
// result status is error, so callers can branch on either.
func (r *StepRunner) Run(ctx context.Context, executionID string, step *schema.Step, input map[string]any) (schema.StepResult, error) {
	started := time.Now()

	var (
		result *AgentResult
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = r.invokeWithTimeout(ctx, step, input)
		if err == nil {
			break
		}
		if attempt >= step.RetryCount || !IsRetryableError(err) || ctx.Err() != nil {
			break
		}

		r.logger.WarnContext(ctx, "step failed, retrying",
			"execution_id", executionID,
			"step_id", step.ID,
			"agent_id", step.AgentID,
			"attempt", attempt+1,
			"max_attempts", step.RetryCount+1,
			"error", err)
		r.emitRetry(ctx, executionID, step, attempt+1)

		if waitErr := WaitForBackoff(ctx, r.backoff(attempt)); waitErr != nil {
			err = waitErr
			break
		}
	}

	durationMs := time.Since(started).Milliseconds()

	if err != nil {
		return schema.StepResult{
			StepID:     step.ID,
			Status:     schema.StepResultError,
			Error:      err.Error(),
			DurationMs: durationMs,
		}, err
	}

	res := schema.StepResult{
		StepID:     step.ID,
		Status:     schema.StepResultSuccess,
		DurationMs: durationMs,
	}
	if result != nil {
		res.Output = result.Output
		res.TokenCount = result.TokenCount
	}
	return res, nil
}

// invokeWithTimeout races one agent call against the step's timeout timer.
// The in-flight call is signalled through context cancellation but is not
// guaranteed to stop; the timer fires independently of the call.
func (r *StepRunner) invokeWithTimeout(ctx context.Context, step *schema.Step, input map[string]any) (*AgentResult, error) {
	timeout := step.Timeout()

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result *AgentResult
		err    error
	}
	// Buffered so a late finisher never leaks the goroutine.
	done := make(chan outcome, 1)

	go func() {
		result, err := r.agents.Invoke(callCtx, step.AgentID, input)
		done <- outcome{result, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStepFailed,
				"step %q failed: %s", stepName(step), out.err.Error()).
				WithStep(step.ID).
				WithCause(out.err)
		}
		return out.result, nil
	case <-timer.C:
		return nil, schema.NewErrorf(schema.ErrCodeTimeout,
			"step %q timed out after %d seconds", stepName(step), int(timeout.Seconds())).
			WithStep(step.ID)
	case <-ctx.Done():
		return nil, schema.NewErrorf(schema.ErrCodeCancelled,
			"step %q interrupted: %s", stepName(step), ctx.Err().Error()).
			WithStep(step.ID).
			WithCause(ctx.Err())
	}
}

func (r *StepRunner) emitRetry(ctx context.Context, executionID string, step *schema.Step, attempt int) {
	if r.events == nil {
		return
	}
	event := &store.Event{
		ExecutionID: executionID,
		StepID:      step.ID,
		Type:        schema.EventStepRetrying,
		AgentID:     step.AgentID,
		Sequence:    int64(attempt),
	}
	if err := r.events.AppendEvent(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "emit retry event failed",
			"execution_id", executionID, "step_id", step.ID, "error", err)
	}
}

func stepName(step *schema.Step) string {
	if step.Name != "" {
		return step.Name
	}
	return step.ID
}
