package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Chains ---

func (s *LibSQLStore) CreateChain(ctx context.Context, chain *Chain) error {
	steps, err := json.Marshal(chain.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chains (id, name, description, steps, is_active, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		chain.ID, chain.Name, nullStr(chain.Description), string(steps),
		boolToInt(chain.IsActive), nullStr(chain.CreatedBy),
		timeOrNow(chain.CreatedAt), timeOrNow(chain.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetChain(ctx context.Context, id string) (*Chain, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, steps, is_active, created_by, created_at, updated_at
		 FROM chains WHERE id = ?`, id)
	chain, err := scanChain(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("chain", id)
	}
	return chain, err
}

func (s *LibSQLStore) UpdateChain(ctx context.Context, chain *Chain) error {
	steps, err := json.Marshal(chain.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chains SET name = ?, description = ?, steps = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		chain.Name, nullStr(chain.Description), string(steps), boolToInt(chain.IsActive), chain.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "chain", chain.ID)
}

func (s *LibSQLStore) ListChains(ctx context.Context, filter ChainFilter) ([]*Chain, error) {
	var where []string
	var args []any

	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolToInt(*filter.IsActive))
	}
	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}

	query := "SELECT id, name, description, steps, is_active, created_by, created_at, updated_at FROM chains"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chains []*Chain
	for rows.Next() {
		chain, err := scanChain(rows)
		if err != nil {
			return nil, err
		}
		chains = append(chains, chain)
	}
	return chains, rows.Err()
}

func (s *LibSQLStore) DeleteChain(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chains WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "chain", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChain(row rowScanner) (*Chain, error) {
	chain := &Chain{}
	var (
		description, createdBy sql.NullString
		stepsJSON              string
		isActive               int
	)
	err := row.Scan(&chain.ID, &chain.Name, &description, &stepsJSON, &isActive,
		&createdBy, &chain.CreatedAt, &chain.UpdatedAt)
	if err != nil {
		return nil, err
	}
	chain.Description = description.String
	chain.CreatedBy = createdBy.String
	chain.IsActive = isActive != 0
	if err := json.Unmarshal([]byte(stepsJSON), &chain.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	return chain, nil
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	input, err := marshalMapOrDefault(exec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	variables, err := marshalMapOrDefault(exec.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	results, err := json.Marshal(exec.StepResults)
	if err != nil {
		return fmt.Errorf("marshal step_results: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, chain_id, status, current_step, input, output, variables, step_results, error_message, executed_by, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.ChainID, string(exec.Status), exec.CurrentStep,
		string(input), nullMap(exec.Output), string(variables), string(results),
		nullStr(exec.ErrorMessage), nullStr(exec.ExecutedBy),
		timeOrNow(exec.StartedAt), nullTime(exec.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chain_id, status, current_step, input, output, variables, step_results, error_message, executed_by, started_at, completed_at
		 FROM executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	return exec, err
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CurrentStep != nil {
		sets = append(sets, "current_step = ?")
		args = append(args, *update.CurrentStep)
	}
	if update.Output != nil {
		out, err := json.Marshal(update.Output)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		sets = append(sets, "output = ?")
		args = append(args, string(out))
	}
	if update.Variables != nil {
		vars, err := json.Marshal(update.Variables)
		if err != nil {
			return fmt.Errorf("marshal variables: %w", err)
		}
		sets = append(sets, "variables = ?")
		args = append(args, string(vars))
	}
	if update.StepResults != nil {
		results, err := json.Marshal(update.StepResults)
		if err != nil {
			return fmt.Errorf("marshal step_results: %w", err)
		}
		sets = append(sets, "step_results = ?")
		args = append(args, string(results))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.ChainID != "" {
		where = append(where, "chain_id = ?")
		args = append(args, filter.ChainID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT id, chain_id, status, current_step, input, output, variables, step_results, error_message, executed_by, started_at, completed_at FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func scanExecution(row rowScanner) (*Execution, error) {
	exec := &Execution{}
	var (
		status                           string
		inputJSON, varsJSON, resultsJSON sql.NullString
		outputJSON, errMsg, executedBy   sql.NullString
		completedAt                      sql.NullTime
	)
	err := row.Scan(&exec.ID, &exec.ChainID, &status, &exec.CurrentStep,
		&inputJSON, &outputJSON, &varsJSON, &resultsJSON, &errMsg, &executedBy,
		&exec.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	exec.Status = schema.ExecutionStatus(status)
	exec.ErrorMessage = errMsg.String
	exec.ExecutedBy = executedBy.String
	if inputJSON.Valid && inputJSON.String != "" {
		_ = json.Unmarshal([]byte(inputJSON.String), &exec.Input)
	}
	if outputJSON.Valid && outputJSON.String != "" {
		_ = json.Unmarshal([]byte(outputJSON.String), &exec.Output)
	}
	if varsJSON.Valid && varsJSON.String != "" {
		_ = json.Unmarshal([]byte(varsJSON.String), &exec.Variables)
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		_ = json.Unmarshal([]byte(resultsJSON.String), &exec.StepResults)
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return exec, nil
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	payload, err := nullableJSON(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (execution_id, step_id, event_type, payload, agent_id, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullStr(event.ExecutionID), nullStr(event.StepID), event.Type, payload,
		nullStr(event.AgentID), timeOrNow(event.Timestamp), event.Sequence,
	)
	return err
}

func (s *LibSQLStore) GetEvents(ctx context.Context, executionID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, event_type, payload, agent_id, timestamp, sequence
		 FROM events WHERE execution_id = ? AND id > ? ORDER BY id ASC`,
		executionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var execID, stepID, payload, agentID sql.NullString
		if err := rows.Scan(&e.ID, &execID, &stepID, &e.Type, &payload, &agentID, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.ExecutionID = execID.String
		e.StepID = stepID.String
		e.AgentID = agentID.String
		e.Payload = jsonOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Agent messages ---

func (s *LibSQLStore) CreateMessage(ctx context.Context, msg *AgentMessage) error {
	content, err := marshalMapOrDefault(msg.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_messages (id, from_agent_id, to_agent_id, message_type, content, status, priority, created_at, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, nullStr(msg.FromAgentID), msg.ToAgentID, msg.Type, string(content),
		string(msg.Status), nullStr(string(msg.Priority)),
		timeOrNow(msg.CreatedAt), nullTime(msg.ProcessedAt),
	)
	return err
}

func (s *LibSQLStore) GetMessage(ctx context.Context, id string) (*AgentMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, from_agent_id, to_agent_id, message_type, content, status, priority, created_at, processed_at
		 FROM agent_messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("message", id)
	}
	return msg, err
}

func (s *LibSQLStore) UpdateMessage(ctx context.Context, id string, update MessageUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.ProcessedAt != nil {
		sets = append(sets, "processed_at = ?")
		args = append(args, *update.ProcessedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE agent_messages SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "message", id)
}

func (s *LibSQLStore) ListMessages(ctx context.Context, filter MessageFilter) ([]*AgentMessage, error) {
	var where []string
	var args []any

	if filter.ToAgentID != "" {
		where = append(where, "to_agent_id = ?")
		args = append(args, filter.ToAgentID)
	}
	if filter.FromAgentID != "" {
		where = append(where, "from_agent_id = ?")
		args = append(args, filter.FromAgentID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Type != "" {
		where = append(where, "message_type = ?")
		args = append(args, filter.Type)
	}

	query := `SELECT id, from_agent_id, to_agent_id, message_type, content, status, priority, created_at, processed_at FROM agent_messages`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*AgentMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func scanMessage(row rowScanner) (*AgentMessage, error) {
	msg := &AgentMessage{}
	var (
		fromAgent, content, priority sql.NullString
		status                       string
		processedAt                  sql.NullTime
	)
	err := row.Scan(&msg.ID, &fromAgent, &msg.ToAgentID, &msg.Type, &content,
		&status, &priority, &msg.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	msg.FromAgentID = fromAgent.String
	msg.Status = schema.MessageStatus(status)
	msg.Priority = schema.MessagePriority(priority.String)
	if content.Valid && content.String != "" {
		_ = json.Unmarshal([]byte(content.String), &msg.Content)
	}
	if processedAt.Valid {
		msg.ProcessedAt = &processedAt.Time
	}
	return msg, nil
}

// --- Agents ---

func (s *LibSQLStore) RegisterAgent(ctx context.Context, agent *Agent) error {
	metadata, err := nullableJSON(agent.Metadata)
	if err != nil {
		return fmt.Errorf("marshal agent metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, type, metadata, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, type=excluded.type, metadata=excluded.metadata`,
		agent.ID, agent.Name, agent.Type, metadata, timeOrNow(agent.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a := &Agent{}
	var metadata sql.NullString
	var lastSeen sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, metadata, created_at, last_seen_at FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Type, &metadata, &a.CreatedAt, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("agent", id)
	}
	if err != nil {
		return nil, err
	}
	a.Metadata = jsonOrNil(metadata)
	if lastSeen.Valid {
		a.LastSeenAt = &lastSeen.Time
	}
	return a, nil
}

func (s *LibSQLStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, metadata, created_at, last_seen_at FROM agents ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a := &Agent{}
		var metadata sql.NullString
		var lastSeen sql.NullTime
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &metadata, &a.CreatedAt, &lastSeen); err != nil {
			return nil, err
		}
		a.Metadata = jsonOrNil(metadata)
		if lastSeen.Valid {
			a.LastSeenAt = &lastSeen.Time
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// --- Scheduled runs ---

func (s *LibSQLStore) CreateScheduledRun(ctx context.Context, run *ScheduledRun) error {
	input, err := nullableJSON(run.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_runs (id, chain_id, cron_expression, input, executed_by, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ChainID, run.CronExpression, input, nullStr(run.ExecutedBy),
		boolToInt(run.Enabled), nullTime(run.LastRunAt), nullTime(run.NextRunAt),
		nullStr(run.LastRunStatus), timeOrNow(run.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chain_id, cron_expression, input, executed_by, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM scheduled_runs WHERE id = ?`, id)
	run, err := scanScheduledRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled run", id)
	}
	return run, err
}

func (s *LibSQLStore) UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

func (s *LibSQLStore) ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error) {
	var where []string
	var args []any

	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}
	if filter.ChainID != "" {
		where = append(where, "chain_id = ?")
		args = append(args, filter.ChainID)
	}

	query := `SELECT id, chain_id, cron_expression, input, executed_by, enabled, last_run_at, next_run_at, last_run_status, created_at FROM scheduled_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScheduledRun
	for rows.Next() {
		run, err := scanScheduledRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

func scanScheduledRun(row rowScanner) (*ScheduledRun, error) {
	run := &ScheduledRun{}
	var (
		input, executedBy, lastStatus sql.NullString
		enabled                       int
		lastRun, nextRun              sql.NullTime
	)
	err := row.Scan(&run.ID, &run.ChainID, &run.CronExpression, &input, &executedBy,
		&enabled, &lastRun, &nextRun, &lastStatus, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.Input = jsonOrNil(input)
	run.ExecutedBy = executedBy.String
	run.Enabled = enabled != 0
	run.LastRunStatus = lastStatus.String
	if lastRun.Valid {
		run.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		run.NextRunAt = &nextRun.Time
	}
	return run, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.ChainError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(b)
}

func jsonOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func nullableJSON(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return string(raw), nil
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
