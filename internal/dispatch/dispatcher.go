package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lattica-ai/chaincore/internal/engine"
	"github.com/lattica-ai/chaincore/internal/logging"
	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// Notifier delivers a message to its recipient. A returned error marks the
// message failed.
type Notifier interface {
	Notify(ctx context.Context, msg *store.AgentMessage) error
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ctx context.Context, msg *store.AgentMessage) error

func (f NotifierFunc) Notify(ctx context.Context, msg *store.AgentMessage) error {
	return f(ctx, msg)
}

// Observer receives message dispatch outcomes for instrumentation.
type Observer interface {
	MessageFinished(messageType string, status schema.MessageStatus)
}

// SendRequest carries everything needed to dispatch one message.
type SendRequest struct {
	FromAgentID string
	ToAgentID   string
	Type        string
	Content     map[string]any
	Priority    schema.MessagePriority
}

// Dispatcher persists agent messages and advances them through the delivery
// lifecycle in the background. Send returns as soon as the message is stored
// in pending; delivery and processing outcomes land in the record.
type Dispatcher struct {
	store    store.Store
	fsm      *engine.MessageFSM
	notifier Notifier
	observer Observer
	events   engine.EventAppender
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher wires a Dispatcher. notifier may be nil, in which case
// messages advance to processed with no recipient callback. publisher and
// observer may be nil.
func NewDispatcher(s store.Store, notifier Notifier, publisher engine.Publisher, observer Observer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	events := &eventSink{store: s, publisher: publisher}
	return &Dispatcher{
		store:    s,
		fsm:      engine.NewMessageFSM(events),
		notifier: notifier,
		observer: observer,
		events:   events,
		logger:   logger,
	}
}

// Send validates and persists a message in pending status, emits message_sent,
// and spawns background delivery. The returned record reflects the pending
// state; callers poll the store (or subscribe to the hub) for the outcome.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (*store.AgentMessage, error) {
	if req.ToAgentID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "message recipient is required")
	}
	if req.Type == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "message type is required")
	}

	priority := req.Priority
	if priority == "" {
		priority = schema.PriorityNormal
	}

	msg := &store.AgentMessage{
		ID:          uuid.NewString(),
		FromAgentID: req.FromAgentID,
		ToAgentID:   req.ToAgentID,
		Type:        req.Type,
		Content:     req.Content,
		Status:      schema.MessagePending,
		Priority:    priority,
		CreatedAt:   time.Now().UTC(),
	}

	if err := d.store.CreateMessage(ctx, msg); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"create message: %s", err.Error()).WithCause(err)
	}

	if err := d.events.AppendEvent(ctx, &store.Event{
		Type:    schema.EventMessageSent,
		AgentID: msg.ToAgentID,
		Payload: []byte(`{"message_id":"` + msg.ID + `"}`),
	}); err != nil {
		d.logger.WarnContext(ctx, "emit message_sent failed", "message_id", msg.ID, "error", err)
	}

	d.wg.Add(1)
	go d.deliver(logging.WithAgentID(context.Background(), msg.ToAgentID), msg)

	return msg, nil
}

// deliver advances one message through delivered and then processed or
// failed. Status only moves forward; a notifier error after delivery leaves
// the message failed, never back in pending.
func (d *Dispatcher) deliver(ctx context.Context, msg *store.AgentMessage) {
	defer d.wg.Done()

	if err := d.transition(ctx, msg, schema.MessagePending, schema.MessageDelivered); err != nil {
		d.finish(ctx, msg, schema.MessagePending, schema.MessageFailed)
		return
	}

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, msg); err != nil {
			d.logger.WarnContext(ctx, "message notify failed",
				"message_id", msg.ID, "to_agent_id", msg.ToAgentID, "error", err)
			d.finish(ctx, msg, schema.MessageDelivered, schema.MessageFailed)
			return
		}
	}

	d.finish(ctx, msg, schema.MessageDelivered, schema.MessageProcessed)
}

// transition runs the FSM step and persists the new status.
func (d *Dispatcher) transition(ctx context.Context, msg *store.AgentMessage, from, to schema.MessageStatus) error {
	if err := d.fsm.Transition(ctx, msg.ID, msg.ToAgentID, from, to); err != nil {
		d.logger.ErrorContext(ctx, "message transition failed",
			"message_id", msg.ID, "from", from, "to", to, "error", err)
		return err
	}

	update := store.MessageUpdate{Status: &to}
	if to.Terminal() {
		now := time.Now().UTC()
		update.ProcessedAt = &now
	}
	if err := d.store.UpdateMessage(ctx, msg.ID, update); err != nil {
		d.logger.ErrorContext(ctx, "persist message status failed",
			"message_id", msg.ID, "status", to, "error", err)
		return err
	}
	return nil
}

// finish moves the message to a terminal status and reports it.
func (d *Dispatcher) finish(ctx context.Context, msg *store.AgentMessage, from, to schema.MessageStatus) {
	_ = d.transition(ctx, msg, from, to)
	if d.observer != nil {
		d.observer.MessageFinished(msg.Type, to)
	}
}

// Drain blocks until all in-flight deliveries finish or the context expires.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// eventSink appends events to the store and mirrors them to the publisher.
type eventSink struct {
	store     store.Store
	publisher engine.Publisher
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
