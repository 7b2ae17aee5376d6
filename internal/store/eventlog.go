package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/timeline/pkg/schema"
)

// NodePayload is the payload shape the engine attaches to node events.
type NodePayload struct {
	Name           string  `json:"name,omitempty"`
	ActualDuration int64   `json:"actualDuration,omitempty"`
	Progress       float64 `json:"progress,omitempty"`
	SelectedOption string  `json:"selectedOption,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// EventLog provides event-sourcing operations on top of a SQLStore.
type EventLog struct {
	store *SQLStore
}

// NewEventLog wraps a SQLStore to provide event-sourcing operations.
func NewEventLog(s *SQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-timeline
// sequence. A write is issued first so the transaction holds the write lock
// before the sequence is read.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := el.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx alone may start a deferred transaction.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	if err := appendEventTx(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a timeline with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, timelineID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, timelineID, since)
}

// QueryEvents returns events matching the filter.
func (el *EventLog) QueryEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	return el.store.QueryEvents(ctx, filter)
}

// ReplayEvents replays all events for a timeline and returns the per-node
// states they imply, keyed by node id. Returns an error if sequence gaps are
// detected.
func (el *EventLog) ReplayEvents(ctx context.Context, timelineID string) (map[string]*NodeState, error) {
	events, err := el.store.GetEvents(ctx, timelineID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}
	return Replay(timelineID, events)
}

// Replay folds an ordered event list into per-node states.
func Replay(timelineID string, events []*Event) (map[string]*NodeState, error) {
	states := make(map[string]*NodeState)
	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in timeline %s: expected %d, got %d", timelineID, expected, e.Sequence)
		}
	}

	for _, e := range events {
		if e.Type == schema.EventTimelineReset {
			states = make(map[string]*NodeState)
			continue
		}
		if e.NodeID == "" {
			continue
		}

		ns, ok := states[e.NodeID]
		if !ok {
			ns = &NodeState{
				TimelineID: timelineID,
				NodeID:     e.NodeID,
				Status:     string(schema.ActionStatusPending),
			}
			states[e.NodeID] = ns
		}

		var payload NodePayload
		if len(e.Payload) > 0 {
			_ = json.Unmarshal(e.Payload, &payload)
		}

		ts := e.Timestamp
		switch e.Type {
		case schema.EventActionStarted:
			ns.Status = string(schema.ActionStatusRunning)
			ns.Runs++
			ns.LastStartedAt = &ts
		case schema.EventActionPaused:
			ns.Status = string(schema.ActionStatusPaused)
		case schema.EventActionResumed:
			ns.Status = string(schema.ActionStatusRunning)
		case schema.EventActionCompleted:
			ns.Status = string(schema.ActionStatusCompleted)
			ns.LastCompletedAt = &ts
			ns.LastDurationMs = payload.ActualDuration
		case schema.EventDecisionActivated:
			ns.Status = string(schema.DecisionStatusActive)
			ns.Runs++
			ns.LastStartedAt = &ts
			ns.Selected = ""
		case schema.EventDecisionResolved:
			ns.Status = string(schema.DecisionStatusCompleted)
			ns.LastCompletedAt = &ts
			ns.Selected = payload.SelectedOption
		}
	}

	return states, nil
}
