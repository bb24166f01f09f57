package store

import (
	"encoding/json"
	"time"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

// Chain is the persisted representation of a chain template: a named,
// ordered sequence of agent invocation steps. Step order is significant
// and fixed at definition time.
type Chain struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []schema.Step `json:"steps"`
	IsActive    bool          `json:"is_active"`
	CreatedBy   string        `json:"created_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Execution is one run of a chain. It is mutated exclusively by the chain
// executor while running and becomes immutable once terminal. StepResults
// and Variables are serialized as JSON columns, not distinct rows.
type Execution struct {
	ID           string                 `json:"id"`
	ChainID      string                 `json:"chain_id"`
	Status       schema.ExecutionStatus `json:"status"`
	CurrentStep  int                    `json:"current_step"`
	Input        map[string]any         `json:"input,omitempty"`
	Output       map[string]any         `json:"output,omitempty"`
	Variables    map[string]any         `json:"variables,omitempty"`
	StepResults  []schema.StepResult    `json:"step_results,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	ExecutedBy   string                 `json:"executed_by,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// Event is an immutable entry in the event log. Execution and step events
// carry ExecutionID; message events carry AgentID and a payload with the
// message id.
type Event struct {
	ID          int64           `json:"id"`
	ExecutionID string          `json:"execution_id,omitempty"`
	StepID      string          `json:"step_id,omitempty"`
	Type        string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	AgentID     string          `json:"agent_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Sequence    int64           `json:"sequence"`
}

// AgentMessage is an asynchronous, directed message between two agents,
// independent of any chain.
type AgentMessage struct {
	ID          string                 `json:"id"`
	FromAgentID string                 `json:"from_agent_id,omitempty"`
	ToAgentID   string                 `json:"to_agent_id"`
	Type        string                 `json:"message_type"`
	Content     map[string]any         `json:"content,omitempty"`
	Status      schema.MessageStatus   `json:"status"`
	Priority    schema.MessagePriority `json:"priority,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
}

// Agent is a registered agent identity. Step targets and message recipients
// resolve against this registry.
type Agent struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"` // llm, system, human, service
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	LastSeenAt *time.Time      `json:"last_seen_at,omitempty"`
}

// ScheduledRun is a cron-triggered chain execution.
type ScheduledRun struct {
	ID             string          `json:"id"`
	ChainID        string          `json:"chain_id"`
	CronExpression string          `json:"cron_expression"`
	Input          json.RawMessage `json:"input,omitempty"`
	ExecutedBy     string          `json:"executed_by,omitempty"`
	Enabled        bool            `json:"enabled"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// --- Filter and update types ---

// ChainFilter specifies criteria for listing chains.
type ChainFilter struct {
	IsActive  *bool  `json:"is_active,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	ChainID string                  `json:"chain_id,omitempty"`
	Status  *schema.ExecutionStatus `json:"status,omitempty"`
	Limit   int                     `json:"limit,omitempty"`
	Offset  int                     `json:"offset,omitempty"`
}

// ExecutionUpdate specifies mutable fields of an execution. Nil fields are
// left untouched.
type ExecutionUpdate struct {
	Status       *schema.ExecutionStatus `json:"status,omitempty"`
	CurrentStep  *int                    `json:"current_step,omitempty"`
	Output       map[string]any          `json:"output,omitempty"`
	Variables    map[string]any          `json:"variables,omitempty"`
	StepResults  []schema.StepResult     `json:"step_results,omitempty"`
	ErrorMessage *string                 `json:"error_message,omitempty"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
}

// MessageFilter specifies criteria for listing agent messages.
type MessageFilter struct {
	ToAgentID   string                `json:"to_agent_id,omitempty"`
	FromAgentID string                `json:"from_agent_id,omitempty"`
	Status      *schema.MessageStatus `json:"status,omitempty"`
	Type        string                `json:"message_type,omitempty"`
	Limit       int                   `json:"limit,omitempty"`
}

// MessageUpdate specifies mutable fields of an agent message.
type MessageUpdate struct {
	Status      *schema.MessageStatus `json:"status,omitempty"`
	ProcessedAt *time.Time            `json:"processed_at,omitempty"`
}

// ScheduledRunFilter specifies criteria for listing scheduled runs.
type ScheduledRunFilter struct {
	Enabled *bool  `json:"enabled,omitempty"`
	ChainID string `json:"chain_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// ScheduledRunUpdate specifies mutable fields of a scheduled run.
type ScheduledRunUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}
