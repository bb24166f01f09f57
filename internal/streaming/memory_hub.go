package streaming

import (
	"context"
	"sync"
	"sync/atomic"
)

// feedBuffer is sized to absorb a burst of step events from a single
// execution without blocking the engine.
const feedBuffer = 64

// feed is one subscriber's delivery channel plus the filter it asked for.
type feed struct {
	events chan StreamEvent
	filter EventFilter
}

// MemoryHub is the in-process EventHub. Delivery is best-effort: the event
// log in the store is the durable record and the hub only mirrors it live,
// so a slow consumer loses events rather than stalling publishers.
type MemoryHub struct {
	mu      sync.RWMutex
	feeds   map[uint64]*feed
	nextID  uint64
	dropped atomic.Uint64
}

// NewMemoryHub creates a hub with no subscribers.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{feeds: make(map[uint64]*feed)}
}

// Publish fans the event out to every feed whose filter matches. Feeds with
// a full buffer are skipped and the drop is counted.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, f := range h.feeds {
		if !f.filter.Matches(event) {
			continue
		}
		select {
		case f.events <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a feed for events matching filter. The returned cancel
// func detaches the feed; events published after that are not delivered.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	f := &feed{events: make(chan StreamEvent, feedBuffer), filter: filter}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.feeds[id] = f
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.feeds, id)
		h.mu.Unlock()
	}

	return f.events, cancel, nil
}

// Dropped returns how many events were discarded because a subscriber's
// buffer was full.
func (h *MemoryHub) Dropped() uint64 {
	return h.dropped.Load()
}

var _ EventHub = (*MemoryHub)(nil)
