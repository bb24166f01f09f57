package streaming

import (
	"context"
	"slices"

	"github.com/lattica-ai/chaincore/internal/store"
)

// StreamEvent is a real-time event emitted during chain execution or message
// dispatch. Execution events carry ExecutionID; message events carry AgentID.
type StreamEvent struct {
	ExecutionID string `json:"execution_id,omitempty"`
	StepID      string `json:"step_id,omitempty"`
	AgentID     string `json:"agent_id,omitempty"`
	EventType   string `json:"event_type"`
	Payload     any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
// Zero-value fields match everything.
type EventFilter struct {
	ExecutionID string   `json:"execution_id,omitempty"`
	AgentID     string   `json:"agent_id,omitempty"`
	EventTypes  []string `json:"event_types,omitempty"`
}

// Matches reports whether the event satisfies every set field of the filter.
func (f EventFilter) Matches(e StreamEvent) bool {
	if f.ExecutionID != "" && f.ExecutionID != e.ExecutionID {
		return false
	}
	if f.AgentID != "" && f.AgentID != e.AgentID {
		return false
	}
	return len(f.EventTypes) == 0 || slices.Contains(f.EventTypes, e.EventType)
}

// EventHub provides pub/sub for real-time execution and message events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}

// StorePublisher adapts an EventHub to the engine's Publisher contract:
// persisted event-log entries are mirrored to live subscribers.
type StorePublisher struct {
	hub EventHub
}

// NewStorePublisher wraps hub for use as an engine publisher.
func NewStorePublisher(hub EventHub) *StorePublisher {
	return &StorePublisher{hub: hub}
}

// Publish converts a persisted event to a stream event and broadcasts it.
// Broadcast failures are not surfaced; the event log is the source of truth.
func (p *StorePublisher) Publish(event *store.Event) {
	if p == nil || p.hub == nil || event == nil {
		return
	}
	_ = p.hub.Publish(context.Background(), StreamEvent{
		ExecutionID: event.ExecutionID,
		StepID:      event.StepID,
		AgentID:     event.AgentID,
		EventType:   event.Type,
		Payload:     rawPayload(event.Payload),
	})
}

func rawPayload(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
