package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lattica-ai/chaincore/internal/logging"
	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// Publisher broadcasts persisted events to live subscribers. Satisfied by the
// streaming hub; a nil publisher disables broadcasting.
type Publisher interface {
	Publish(event *store.Event)
}

// Observer receives execution and step lifecycle signals for instrumentation.
// Satisfied by the metrics collector; a nil observer disables instrumentation.
type Observer interface {
	ExecutionStarted(chainID string)
	ExecutionFinished(chainID string, status schema.ExecutionStatus, duration time.Duration)
	StepFinished(agentID string, status schema.StepResultStatus, duration time.Duration)
}

// ExecuteRequest carries everything needed to start one execution.
type ExecuteRequest struct {
	Chain      *store.Chain
	Input      map[string]any
	Variables  map[string]any // extra seed variables merged into the bag
	ExecutedBy string
}

// ChainExecutor drives executions through their chain's steps sequentially.
// Starting an execution returns immediately; the step loop runs as a detached
// background task per execution. Cancellation is cooperative: the loop checks
// the signal before each step, never preemptively mid-step.
type ChainExecutor struct {
	store      store.Store
	runner     *StepRunner
	conditions *ConditionEvaluator
	mapper     *Mapper
	registry   *CancelRegistry
	fsm        *ExecutionFSM
	events     *eventSink
	observer   Observer
	logger     *slog.Logger
}

// NewChainExecutor wires a ChainExecutor. registry must not be nil — it is
// injected, not ambient, so separate executor instances never share
// cancellation state. publisher and observer may be nil.
func NewChainExecutor(s store.Store, agents AgentExecutor, registry *CancelRegistry, publisher Publisher, observer Observer, logger *slog.Logger) (*ChainExecutor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conditions, err := NewConditionEvaluator(logger)
	if err != nil {
		return nil, err
	}

	events := &eventSink{store: s, publisher: publisher}

	return &ChainExecutor{
		store:      s,
		runner:     NewStepRunner(agents, events, logger),
		conditions: conditions,
		mapper:     NewMapper(),
		registry:   registry,
		fsm:        NewExecutionFSM(events),
		events:     events,
		observer:   observer,
		logger:     logger,
	}, nil
}

// Registry exposes the executor's cancellation registry.
func (e *ChainExecutor) Registry() *CancelRegistry { return e.registry }

// Start creates an execution in running status and spawns its step loop.
// Rejections (inactive chain, empty chain) surface synchronously; failures
// during background processing land in the execution record only.
func (e *ChainExecutor) Start(ctx context.Context, req ExecuteRequest) (*store.Execution, error) {
	chain := req.Chain
	if !chain.IsActive {
		return nil, schema.NewErrorf(schema.ErrCodeChainInactive,
			"chain %q is inactive", chain.ID)
	}
	if len(chain.Steps) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"chain %q has no steps", chain.ID)
	}

	exec := &store.Execution{
		ID:          uuid.NewString(),
		ChainID:     chain.ID,
		Status:      schema.ExecutionRunning,
		Input:       req.Input,
		Variables:   seedVariables(req.Input, req.Variables),
		StepResults: []schema.StepResult{},
		ExecutedBy:  req.ExecutedBy,
		StartedAt:   time.Now().UTC(),
	}

	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"create execution: %s", err.Error()).WithCause(err)
	}

	if err := e.fsm.Transition(ctx, exec.ID, schema.ExecutionPending, schema.ExecutionRunning); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(logging.WithExecutionID(context.Background(), exec.ID))
	if err := e.registry.Register(exec.ID, cancel); err != nil {
		cancel()
		return nil, err
	}

	if e.observer != nil {
		e.observer.ExecutionStarted(chain.ID)
	}

	go e.run(runCtx, chain, exec)

	return exec, nil
}

// Cancel requests cooperative termination of a running execution. The
// execution is persisted as cancelled immediately; an in-flight step observes
// the signal at the next loop boundary.
func (e *ChainExecutor) Cancel(ctx context.Context, executionID string) error {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExecutionNotFound,
			"execution %q not found", executionID).WithCause(err)
	}
	if exec.Status.Terminal() {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"execution %q is already %s", executionID, exec.Status)
	}

	if err := e.fsm.Transition(ctx, executionID, exec.Status, schema.ExecutionCancelled); err != nil {
		return err
	}

	now := time.Now().UTC()
	cancelled := schema.ExecutionCancelled
	if err := e.store.UpdateExecution(ctx, executionID, store.ExecutionUpdate{
		Status:      &cancelled,
		CompletedAt: &now,
	}); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore,
			"persist cancellation: %s", err.Error()).WithCause(err)
	}

	e.registry.Cancel(executionID)

	if e.observer != nil {
		e.observer.ExecutionFinished(exec.ChainID, schema.ExecutionCancelled, now.Sub(exec.StartedAt))
	}

	e.logger.InfoContext(ctx, "execution cancelled",
		"execution_id", executionID, "chain_id", exec.ChainID)
	return nil
}

// WaitForCompletion blocks until the execution's background loop finishes or
// the context expires. Intended for graceful shutdown and tests.
func (e *ChainExecutor) WaitForCompletion(ctx context.Context, executionID string) error {
	return e.registry.Wait(ctx, executionID)
}

// run is the background step loop for one execution.
func (e *ChainExecutor) run(ctx context.Context, chain *store.Chain, exec *store.Execution) {
	defer e.registry.Release(exec.ID)

	// Store writes must survive the cancellation signal: the loop observes
	// cancellation only at its checkpoints.
	persistCtx := context.WithoutCancel(ctx)

	variables := exec.Variables
	results := make([]schema.StepResult, 0, len(chain.Steps))

	for i := range chain.Steps {
		step := &chain.Steps[i]

		if ctx.Err() != nil {
			e.logger.InfoContext(ctx, "execution loop observed cancellation",
				"execution_id", exec.ID, "current_step", i)
			return
		}

		currentStep := i
		if err := e.store.UpdateExecution(persistCtx, exec.ID, store.ExecutionUpdate{CurrentStep: &currentStep}); err != nil {
			e.fail(persistCtx, chain, exec, schema.NewErrorf(schema.ErrCodeStore,
				"persist step index: %s", err.Error()).WithCause(err))
			return
		}

		stepCtx := logging.WithIDs(ctx, exec.ID, step.ID, step.AgentID)

		var prev *schema.StepResult
		if len(results) > 0 {
			prev = &results[len(results)-1]
		}

		if !e.conditions.ShouldRun(stepCtx, step, prev, variables, exec.Input, results) {
			results = append(results, schema.StepResult{
				StepID: step.ID,
				Status: schema.StepResultSkipped,
			})
			e.emitStep(persistCtx, exec.ID, step, schema.EventStepSkipped)
			if e.observer != nil {
				e.observer.StepFinished(step.AgentID, schema.StepResultSkipped, 0)
			}
			if err := e.persistProgress(persistCtx, exec.ID, results, variables); err != nil {
				e.fail(persistCtx, chain, exec, err)
				return
			}
			continue
		}

		e.emitStep(persistCtx, exec.ID, step, schema.EventStepStarted)

		input, err := e.mapper.ResolveInput(stepCtx, step, variables, results)
		var result schema.StepResult
		if err != nil {
			result = schema.StepResult{StepID: step.ID, Status: schema.StepResultError, Error: err.Error()}
		} else {
			result, err = e.runner.Run(stepCtx, exec.ID, step, input)
		}
		results = append(results, result)

		if e.observer != nil {
			e.observer.StepFinished(step.AgentID, result.Status, time.Duration(result.DurationMs)*time.Millisecond)
		}

		if err != nil {
			e.emitStep(persistCtx, exec.ID, step, schema.EventStepFailed)

			if ctx.Err() != nil {
				// Cancelled mid-step; Cancel already finalized the record.
				_ = e.persistProgress(persistCtx, exec.ID, results, variables)
				return
			}

			if persistErr := e.persistProgress(persistCtx, exec.ID, results, variables); persistErr != nil {
				e.fail(persistCtx, chain, exec, persistErr)
				return
			}

			// The failure is non-fatal when the next step branches on it:
			// an if_error step downstream means this failure is expected
			// and handled there.
			if next := nextStep(chain, i); next != nil && next.Condition.EffectiveKind() == schema.ConditionIfError {
				e.logger.WarnContext(stepCtx, "step failed, continuing to if_error branch",
					"next_step_id", next.ID, "error", err)
				continue
			}

			e.fail(persistCtx, chain, exec, err)
			return
		}

		if err := e.mapper.ApplyOutputMapping(stepCtx, step, result.Output, variables); err != nil {
			e.fail(persistCtx, chain, exec, err)
			return
		}

		e.emitStep(persistCtx, exec.ID, step, schema.EventStepCompleted)

		if err := e.persistProgress(persistCtx, exec.ID, results, variables); err != nil {
			e.fail(persistCtx, chain, exec, err)
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	e.complete(persistCtx, chain, exec, results, variables)
}

// complete finalizes a successful run: the execution's output is the last
// recorded step result's output.
func (e *ChainExecutor) complete(ctx context.Context, chain *store.Chain, exec *store.Execution, results []schema.StepResult, variables map[string]any) {
	if e.terminalElsewhere(ctx, exec.ID) {
		return
	}

	if err := e.fsm.Transition(ctx, exec.ID, schema.ExecutionRunning, schema.ExecutionCompleted); err != nil {
		e.logger.ErrorContext(ctx, "completion transition failed", "execution_id", exec.ID, "error", err)
		return
	}

	var output map[string]any
	if len(results) > 0 {
		output = results[len(results)-1].Output
	}
	if output == nil {
		output = map[string]any{}
	}

	now := time.Now().UTC()
	completed := schema.ExecutionCompleted
	if err := e.store.UpdateExecution(ctx, exec.ID, store.ExecutionUpdate{
		Status:      &completed,
		Output:      output,
		Variables:   variables,
		StepResults: results,
		CompletedAt: &now,
	}); err != nil {
		e.logger.ErrorContext(ctx, "persist completion failed", "execution_id", exec.ID, "error", err)
		return
	}

	if e.observer != nil {
		e.observer.ExecutionFinished(chain.ID, schema.ExecutionCompleted, now.Sub(exec.StartedAt))
	}

	e.logger.InfoContext(ctx, "execution completed",
		"execution_id", exec.ID, "chain_id", chain.ID, "steps", len(results))
}

// fail finalizes a run whose processing errored. The error lands in the
// execution record; the caller's original call already returned.
func (e *ChainExecutor) fail(ctx context.Context, chain *store.Chain, exec *store.Execution, cause error) {
	if e.terminalElsewhere(ctx, exec.ID) {
		return
	}

	if err := e.fsm.Transition(ctx, exec.ID, schema.ExecutionRunning, schema.ExecutionFailed); err != nil {
		e.logger.ErrorContext(ctx, "failure transition failed", "execution_id", exec.ID, "error", err)
		return
	}

	now := time.Now().UTC()
	failed := schema.ExecutionFailed
	msg := cause.Error()
	if err := e.store.UpdateExecution(ctx, exec.ID, store.ExecutionUpdate{
		Status:       &failed,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	}); err != nil {
		e.logger.ErrorContext(ctx, "persist failure failed", "execution_id", exec.ID, "error", err)
		return
	}

	if e.observer != nil {
		e.observer.ExecutionFinished(chain.ID, schema.ExecutionFailed, now.Sub(exec.StartedAt))
	}

	e.logger.WarnContext(ctx, "execution failed",
		"execution_id", exec.ID, "chain_id", chain.ID, "error", cause)
}

// terminalElsewhere reports whether another writer (Cancel) already finalized
// the execution record.
func (e *ChainExecutor) terminalElsewhere(ctx context.Context, executionID string) bool {
	current, err := e.store.GetExecution(ctx, executionID)
	return err == nil && current.Status.Terminal()
}

func (e *ChainExecutor) persistProgress(ctx context.Context, executionID string, results []schema.StepResult, variables map[string]any) error {
	if err := e.store.UpdateExecution(ctx, executionID, store.ExecutionUpdate{
		StepResults: results,
		Variables:   variables,
	}); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore,
			"persist step results: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (e *ChainExecutor) emitStep(ctx context.Context, executionID string, step *schema.Step, eventType string) {
	event := &store.Event{
		ExecutionID: executionID,
		StepID:      step.ID,
		Type:        eventType,
		AgentID:     step.AgentID,
	}
	if err := e.events.AppendEvent(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "emit step event failed",
			"execution_id", executionID, "step_id", step.ID, "event", eventType, "error", err)
	}
}

func nextStep(chain *store.Chain, i int) *schema.Step {
	if i+1 < len(chain.Steps) {
		return &chain.Steps[i+1]
	}
	return nil
}

// seedVariables builds the initial variable bag: {input: <seed>} plus any
// caller-supplied extras.
func seedVariables(input, extra map[string]any) map[string]any {
	bag := make(map[string]any, len(extra)+1)
	if input == nil {
		bag["input"] = map[string]any{}
	} else {
		bag["input"] = input
	}
	for k, v := range extra {
		bag[k] = v
	}
	return bag
}

// eventSink appends events to the store and mirrors them to the publisher.
type eventSink struct {
	store     store.Store
	publisher Publisher
}

func (s *eventSink) AppendEvent(ctx context.Context, event *store.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.store.AppendEvent(ctx, event); err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
	return nil
}
