package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

const defaultChannelBuffer = 64

type subscription struct {
	ch     chan StreamEvent
	types  []string
	closed bool
}

func (s *subscription) wants(eventType string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, eventType)
}

// MemoryHub is an in-process EventHub. Subscriptions are indexed by
// timeline id; the "" bucket holds subscribers to every timeline.
// Delivery never blocks: a full subscriber misses the event and the store
// event log stays the source of truth for catch-up.
type MemoryHub struct {
	mu      sync.RWMutex
	buckets map[string]map[*subscription]struct{}
	count   int
	dropped atomic.Int64
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{buckets: make(map[string]map[*subscription]struct{})}
}

// Publish delivers event to the subscribers of its timeline and to the
// wildcard subscribers.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.buckets[event.TimelineID], event)
	if event.TimelineID != "" {
		h.deliver(h.buckets[""], event)
	}
	return nil
}

func (h *MemoryHub) deliver(bucket map[*subscription]struct{}, event StreamEvent) {
	for sub := range bucket {
		if !sub.wants(event.EventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscription. The returned cancel func removes it
// and closes the channel; calling it again is a no-op.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	sub := &subscription{
		ch:    make(chan StreamEvent, defaultChannelBuffer),
		types: slices.Clone(filter.EventTypes),
	}

	h.mu.Lock()
	bucket, ok := h.buckets[filter.TimelineID]
	if !ok {
		bucket = make(map[*subscription]struct{})
		h.buckets[filter.TimelineID] = bucket
	}
	bucket[sub] = struct{}{}
	h.count++
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.remove(filter.TimelineID, sub)
	}
	return sub.ch, cancel, nil
}

// remove must be called with mu held.
func (h *MemoryHub) remove(timelineID string, sub *subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	h.count--
	bucket := h.buckets[timelineID]
	delete(bucket, sub)
	if len(bucket) == 0 {
		delete(h.buckets, timelineID)
	}
}

// Close ends every subscription.
func (h *MemoryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, bucket := range h.buckets {
		for sub := range bucket {
			h.remove(id, sub)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (h *MemoryHub) Dropped() int64 { return h.dropped.Load() }
