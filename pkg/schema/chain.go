package schema

import "time"

// DefaultStepTimeout applies when a step declares no timeout of its own.
const DefaultStepTimeout = 300 * time.Second

// Step is one entry in a chain: the agent to invoke, an optional condition
// gating the invocation, and the I/O mappings threading data through the
// execution context.
type Step struct {
	ID            string            `json:"id"`
	AgentID       string            `json:"agent_id"`
	Name          string            `json:"name"`
	Condition     *Condition        `json:"condition,omitempty"`
	InputMapping  map[string]string `json:"input_mapping,omitempty"`  // target key -> source path
	OutputMapping map[string]string `json:"output_mapping,omitempty"` // source path in output -> context variable
	TimeoutSec    int               `json:"timeout_seconds,omitempty"`
	RetryCount    int               `json:"retry_count,omitempty"`
}

// Timeout returns the step's deadline, falling back to DefaultStepTimeout.
func (s *Step) Timeout() time.Duration {
	if s.TimeoutSec > 0 {
		return time.Duration(s.TimeoutSec) * time.Second
	}
	return DefaultStepTimeout
}

// ConditionKind enumerates the supported step-gating predicates.
type ConditionKind string

const (
	ConditionAlways    ConditionKind = "always"
	ConditionIfSuccess ConditionKind = "if_success"
	ConditionIfError   ConditionKind = "if_error"
	ConditionCustom    ConditionKind = "custom"
)

// Condition decides whether a step runs, based on the previous step's
// outcome or a custom expression evaluated against the variable bag.
type Condition struct {
	Kind       ConditionKind `json:"kind"`
	Expression string        `json:"expression,omitempty"` // required for kind=custom
}

// Kind returns the effective condition kind for a possibly-nil condition.
// An absent condition means the step always runs.
func (c *Condition) EffectiveKind() ConditionKind {
	if c == nil || c.Kind == "" {
		return ConditionAlways
	}
	return c.Kind
}

// StepResult is the recorded outcome of considering one step during an
// execution. Results are appended in step order and serialized as a JSON
// column on the execution row, never as distinct rows.
type StepResult struct {
	StepID     string         `json:"step_id"`
	Status     StepResultStatus `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	TokenCount int            `json:"token_count,omitempty"`
}

// StepResultStatus classifies a recorded step outcome. Skipped is distinct
// from success: a step whose condition evaluated false neither satisfies
// if_success nor if_error downstream.
type StepResultStatus string

const (
	StepResultSuccess StepResultStatus = "success"
	StepResultError   StepResultStatus = "error"
	StepResultSkipped StepResultStatus = "skipped"
)

// ExecutionStatus is the lifecycle state of a chain execution.
// Pending exists only conceptually before the record is created; the engine
// persists executions directly in running state.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// MessageStatus is the delivery state of an inter-agent message.
// Status only moves forward: pending -> delivered -> processed, or to
// failed from any non-terminal state.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageDelivered MessageStatus = "delivered"
	MessageProcessed MessageStatus = "processed"
	MessageFailed    MessageStatus = "failed"
)

// Terminal reports whether the message status admits no further transitions.
func (s MessageStatus) Terminal() bool {
	return s == MessageProcessed || s == MessageFailed
}

// MessagePriority orders independent messages for consumers that care;
// the dispatcher itself makes no ordering guarantee.
type MessagePriority string

const (
	PriorityLow    MessagePriority = "low"
	PriorityNormal MessagePriority = "normal"
	PriorityHigh   MessagePriority = "high"
)
