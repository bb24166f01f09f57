package engine

import (
	"context"
	"sync"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the Store; FSMs emit events on transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// --- Execution FSM ---

type executionHookKey struct {
	from, to schema.ExecutionStatus
}

// ExecutionFSM manages execution lifecycle state transitions. Transitions are
// one-directional: running reaches exactly one terminal status and terminal
// states accept no further transitions.
type ExecutionFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[executionHookKey][]TransitionHook
	after    map[executionHookKey][]TransitionHook
}

// NewExecutionFSM creates an ExecutionFSM that emits events via the appender.
func NewExecutionFSM(appender EventAppender) *ExecutionFSM {
	return &ExecutionFSM{
		appender: appender,
		before:   make(map[executionHookKey][]TransitionHook),
		after:    make(map[executionHookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before an execution transition.
func (f *ExecutionFSM) OnBefore(from, to schema.ExecutionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := executionHookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after an execution transition.
func (f *ExecutionFSM) OnAfter(from, to schema.ExecutionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := executionHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes an execution state transition, emitting
// the corresponding event. The caller persists the new state to the store.
func (f *ExecutionFSM) Transition(ctx context.Context, executionID string, from, to schema.ExecutionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidExecutionTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid execution transition: %s -> %s", from, to).
			WithDetails(map[string]any{"execution_id": executionID, "from": string(from), "to": string(to)})
	}

	key := executionHookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if eventType := executionEventType(to); eventType != "" {
		event := &store.Event{
			ExecutionID: executionID,
			Type:        eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit execution event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

func isValidExecutionTransition(from, to schema.ExecutionStatus) bool {
	allowed, ok := ValidExecutionTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func executionEventType(to schema.ExecutionStatus) string {
	switch to {
	case schema.ExecutionRunning:
		return schema.EventExecutionStarted
	case schema.ExecutionCompleted:
		return schema.EventExecutionCompleted
	case schema.ExecutionFailed:
		return schema.EventExecutionFailed
	case schema.ExecutionCancelled:
		return schema.EventExecutionCancelled
	default:
		return ""
	}
}

// --- Message FSM ---

type messageHookKey struct {
	from, to schema.MessageStatus
}

// MessageFSM manages agent-message delivery state transitions. Status moves
// forward only: pending -> delivered -> processed, or failed from any
// non-terminal state; it never regresses.
type MessageFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[messageHookKey][]TransitionHook
	after    map[messageHookKey][]TransitionHook
}

// NewMessageFSM creates a MessageFSM that emits events via the appender.
func NewMessageFSM(appender EventAppender) *MessageFSM {
	return &MessageFSM{
		appender: appender,
		before:   make(map[messageHookKey][]TransitionHook),
		after:    make(map[messageHookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a message transition.
func (f *MessageFSM) OnBefore(from, to schema.MessageStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := messageHookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a message transition.
func (f *MessageFSM) OnAfter(from, to schema.MessageStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := messageHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a message state transition, emitting the
// corresponding event with the recipient as agent context.
func (f *MessageFSM) Transition(ctx context.Context, messageID, toAgentID string, from, to schema.MessageStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidMessageTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid message transition: %s -> %s", from, to).
			WithDetails(map[string]any{"message_id": messageID, "from": string(from), "to": string(to)})
	}

	key := messageHookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if eventType := messageEventType(to); eventType != "" {
		event := &store.Event{
			Type:    eventType,
			AgentID: toAgentID,
			Payload: messagePayload(messageID),
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit message event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

func isValidMessageTransition(from, to schema.MessageStatus) bool {
	allowed, ok := ValidMessageTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func messageEventType(to schema.MessageStatus) string {
	switch to {
	case schema.MessageDelivered:
		return schema.EventMessageDelivered
	case schema.MessageProcessed:
		return schema.EventMessageProcessed
	case schema.MessageFailed:
		return schema.EventMessageFailed
	default:
		return ""
	}
}

func messagePayload(messageID string) []byte {
	return []byte(`{"message_id":"` + messageID + `"}`)
}

// --- Transition tables ---

// ValidExecutionTransitions defines the allowed execution status transitions.
// Executions are created directly in running; pending exists for callers that
// model a pre-start state.
var ValidExecutionTransitions = map[schema.ExecutionStatus][]schema.ExecutionStatus{
	schema.ExecutionPending:   {schema.ExecutionRunning, schema.ExecutionCancelled},
	schema.ExecutionRunning:   {schema.ExecutionCompleted, schema.ExecutionFailed, schema.ExecutionCancelled},
	schema.ExecutionCompleted: {},
	schema.ExecutionFailed:    {},
	schema.ExecutionCancelled: {},
}

// ValidMessageTransitions defines the allowed message status transitions.
var ValidMessageTransitions = map[schema.MessageStatus][]schema.MessageStatus{
	schema.MessagePending:   {schema.MessageDelivered, schema.MessageFailed},
	schema.MessageDelivered: {schema.MessageProcessed, schema.MessageFailed},
	schema.MessageProcessed: {},
	schema.MessageFailed:    {},
}
