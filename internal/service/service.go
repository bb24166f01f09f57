package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/lattica-ai/chaincore/internal/dispatch"
	"github.com/lattica-ai/chaincore/internal/engine"
	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/internal/validation"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// Service is the API facade over the store, executor, and dispatcher. All
// transports (MCP tools, embedding applications) go through it.
type Service struct {
	store      store.Store
	executor   *engine.ChainExecutor
	dispatcher *dispatch.Dispatcher
	validator  *validation.ChainValidator
	cronParser cron.Parser
	logger     *slog.Logger
}

// NewService wires a Service. All dependencies are required except logger.
func NewService(s store.Store, executor *engine.ChainExecutor, dispatcher *dispatch.Dispatcher, validator *validation.ChainValidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      s,
		executor:   executor,
		dispatcher: dispatcher,
		validator:  validator,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:     logger,
	}
}

// --- Chains ---

// CreateChain validates and persists a new chain definition. A missing ID is
// generated; a new chain is active unless explicitly deactivated.
func (s *Service) CreateChain(ctx context.Context, chain *store.Chain) (*store.Chain, error) {
	if chain == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "chain definition is nil")
	}
	if chain.ID == "" {
		chain.ID = uuid.NewString()
	}

	if err := s.validator.Validate(ctx, chain).ToError(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	chain.CreatedAt = now
	chain.UpdatedAt = now

	if err := s.store.CreateChain(ctx, chain); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"create chain: %s", err.Error()).WithCause(err)
	}

	s.logger.InfoContext(ctx, "chain created", "chain_id", chain.ID, "name", chain.Name)
	return chain, nil
}

// GetChain fetches a chain by ID.
func (s *Service) GetChain(ctx context.Context, id string) (*store.Chain, error) {
	chain, err := s.store.GetChain(ctx, id)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeChainNotFound,
			"chain %q not found", id).WithCause(err)
	}
	return chain, nil
}

// ListChains lists chains matching the filter.
func (s *Service) ListChains(ctx context.Context, filter store.ChainFilter) ([]*store.Chain, error) {
	chains, err := s.store.ListChains(ctx, filter)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"list chains: %s", err.Error()).WithCause(err)
	}
	return chains, nil
}

// UpdateChain validates and persists changes to an existing chain. Running
// executions keep the step snapshot they started with.
func (s *Service) UpdateChain(ctx context.Context, chain *store.Chain) (*store.Chain, error) {
	if chain == nil || chain.ID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "chain id is required")
	}

	existing, err := s.GetChain(ctx, chain.ID)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(ctx, chain).ToError(); err != nil {
		return nil, err
	}

	chain.CreatedAt = existing.CreatedAt
	chain.CreatedBy = existing.CreatedBy
	chain.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateChain(ctx, chain); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"update chain: %s", err.Error()).WithCause(err)
	}

	s.logger.InfoContext(ctx, "chain updated", "chain_id", chain.ID)
	return chain, nil
}

// DeleteChain cancels the chain's running executions and removes the chain,
// its executions, and its scheduled runs.
func (s *Service) DeleteChain(ctx context.Context, id string) error {
	if _, err := s.GetChain(ctx, id); err != nil {
		return err
	}

	running := schema.ExecutionRunning
	execs, err := s.store.ListExecutions(ctx, store.ExecutionFilter{ChainID: id, Status: &running})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore,
			"list running executions: %s", err.Error()).WithCause(err)
	}
	for _, exec := range execs {
		if err := s.executor.Cancel(ctx, exec.ID); err != nil {
			s.logger.WarnContext(ctx, "cancel before delete failed",
				"chain_id", id, "execution_id", exec.ID, "error", err)
		}
	}

	if err := s.store.DeleteChain(ctx, id); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore,
			"delete chain: %s", err.Error()).WithCause(err)
	}

	s.logger.InfoContext(ctx, "chain deleted", "chain_id", id, "cancelled_executions", len(execs))
	return nil
}

// ValidateChain runs the validation pipeline without persisting anything.
func (s *Service) ValidateChain(ctx context.Context, chain *store.Chain) *schema.ValidationResult {
	return s.validator.Validate(ctx, chain)
}

// --- Executions ---

// ExecuteChain starts a new execution of the chain and returns immediately
// with the running record.
func (s *Service) ExecuteChain(ctx context.Context, chainID string, input, variables map[string]any, executedBy string) (*store.Execution, error) {
	chain, err := s.GetChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return s.executor.Start(ctx, engine.ExecuteRequest{
		Chain:      chain,
		Input:      input,
		Variables:  variables,
		ExecutedBy: executedBy,
	})
}

// RunChain starts an execution and discards the record. Satisfies the
// scheduler's ChainRunner contract.
func (s *Service) RunChain(ctx context.Context, chainID string, input map[string]any, executedBy string) error {
	_, err := s.ExecuteChain(ctx, chainID, input, nil, executedBy)
	return err
}

// GetExecution fetches an execution by ID.
func (s *Service) GetExecution(ctx context.Context, id string) (*store.Execution, error) {
	exec, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecutionNotFound,
			"execution %q not found", id).WithCause(err)
	}
	return exec, nil
}

// GetChainExecutions lists the chain's executions, optionally filtered by
// status.
func (s *Service) GetChainExecutions(ctx context.Context, chainID string, status *schema.ExecutionStatus, limit, offset int) ([]*store.Execution, error) {
	if _, err := s.GetChain(ctx, chainID); err != nil {
		return nil, err
	}
	execs, err := s.store.ListExecutions(ctx, store.ExecutionFilter{
		ChainID: chainID,
		Status:  status,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"list executions: %s", err.Error()).WithCause(err)
	}
	return execs, nil
}

// CancelExecution requests cooperative cancellation of a running execution.
func (s *Service) CancelExecution(ctx context.Context, id string) error {
	return s.executor.Cancel(ctx, id)
}

// GetEvents reads the execution's event log after the given sequence cursor.
func (s *Service) GetEvents(ctx context.Context, executionID string, since int64) ([]*store.Event, error) {
	events, err := s.store.GetEvents(ctx, executionID, since)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"get events: %s", err.Error()).WithCause(err)
	}
	return events, nil
}

// GetChainAnalytics aggregates the chain's execution history.
func (s *Service) GetChainAnalytics(ctx context.Context, chainID string) (*engine.ChainAnalytics, error) {
	if _, err := s.GetChain(ctx, chainID); err != nil {
		return nil, err
	}
	execs, err := s.store.ListExecutions(ctx, store.ExecutionFilter{ChainID: chainID})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"list executions: %s", err.Error()).WithCause(err)
	}
	return engine.Analyze(chainID, execs), nil
}

// --- Messages ---

// SendMessage dispatches a directed agent message. The recipient must be a
// registered agent.
func (s *Service) SendMessage(ctx context.Context, req dispatch.SendRequest) (*store.AgentMessage, error) {
	if req.ToAgentID != "" {
		if _, err := s.store.GetAgent(ctx, req.ToAgentID); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound,
				"agent %q is not registered", req.ToAgentID).WithCause(err)
		}
	}
	return s.dispatcher.Send(ctx, req)
}

// GetAgentMessages lists messages matching the filter.
func (s *Service) GetAgentMessages(ctx context.Context, filter store.MessageFilter) ([]*store.AgentMessage, error) {
	msgs, err := s.store.ListMessages(ctx, filter)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"list messages: %s", err.Error()).WithCause(err)
	}
	return msgs, nil
}

// --- Agents ---

// RegisterAgent creates or updates an agent identity.
func (s *Service) RegisterAgent(ctx context.Context, agent *store.Agent) error {
	if agent == nil || agent.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "agent id is required")
	}
	if err := s.store.RegisterAgent(ctx, agent); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore,
			"register agent: %s", err.Error()).WithCause(err)
	}
	return nil
}

// GetAgent fetches a registered agent by ID.
func (s *Service) GetAgent(ctx context.Context, id string) (*store.Agent, error) {
	agent, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"agent %q is not registered", id).WithCause(err)
	}
	return agent, nil
}

// ListAgents lists all registered agents.
func (s *Service) ListAgents(ctx context.Context) ([]*store.Agent, error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"list agents: %s", err.Error()).WithCause(err)
	}
	return agents, nil
}

// --- Scheduled runs ---

// CreateScheduledRun validates and persists a cron-triggered chain run, with
// its first trigger time precomputed.
func (s *Service) CreateScheduledRun(ctx context.Context, run *store.ScheduledRun) (*store.ScheduledRun, error) {
	if run == nil || run.ChainID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "chain id is required")
	}
	if _, err := s.GetChain(ctx, run.ChainID); err != nil {
		return nil, err
	}

	sched, err := s.cronParser.Parse(run.CronExpression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid cron expression %q: %s", run.CronExpression, err.Error()).WithCause(err)
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.CreatedAt = time.Now().UTC()
	next := sched.Next(run.CreatedAt)
	run.NextRunAt = &next

	if err := s.store.CreateScheduledRun(ctx, run); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"create scheduled run: %s", err.Error()).WithCause(err)
	}
	return run, nil
}

// ListScheduledRuns lists scheduled runs matching the filter.
func (s *Service) ListScheduledRuns(ctx context.Context, filter store.ScheduledRunFilter) ([]*store.ScheduledRun, error) {
	runs, err := s.store.ListScheduledRuns(ctx, filter)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"list scheduled runs: %s", err.Error()).WithCause(err)
	}
	return runs, nil
}

// DeleteScheduledRun removes a scheduled run.
func (s *Service) DeleteScheduledRun(ctx context.Context, id string) error {
	if err := s.store.DeleteScheduledRun(ctx, id); err != nil {
		return schema.NewErrorf(schema.ErrCodeNotFound,
			"scheduled run %q not found", id).WithCause(err)
	}
	return nil
}

// --- Lifecycle ---

// Shutdown waits for in-flight work: message deliveries drain and running
// executions are left to finish in the store's care.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.dispatcher.Drain(ctx)
}
