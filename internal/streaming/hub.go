// Package streaming fans timeline events out to live subscribers: an
// in-memory hub for SSE clients and a NATS publisher for other processes.
package streaming

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rendis/timeline/internal/store"
)

// StreamEvent is a real-time event emitted while a timeline runs.
type StreamEvent struct {
	TimelineID string          `json:"timeline_id"`
	NodeID     string          `json:"node_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	EventType  string          `json:"event_type"`
	Sequence   int64           `json:"sequence,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// FromStoreEvent converts a persisted event into its stream form.
func FromStoreEvent(e *store.Event) StreamEvent {
	return StreamEvent{
		TimelineID: e.TimelineID,
		NodeID:     e.NodeID,
		SessionID:  e.SessionID,
		EventType:  e.Type,
		Sequence:   e.Sequence,
		Timestamp:  e.Timestamp,
		Payload:    e.Payload,
	}
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	TimelineID string   `json:"timeline_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time timeline events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
