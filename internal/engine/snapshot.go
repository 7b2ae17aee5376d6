package engine

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/pkg/schema"
)

// Snapshot is the persisted shape of an engine.
type Snapshot struct {
	Actions          []*graph.Action        `json:"actions"`
	DecisionPoints   []*graph.DecisionPoint `json:"decisionPoints"`
	Notes            []*graph.Note          `json:"notes"`
	CurrentNodeID    *string                `json:"currentNodeId"`
	ExecutionHistory []string               `json:"executionHistory"`
	IsRunning        bool                   `json:"isRunning"`
}

// Nodes returns the snapshot's nodes as a tagged union list.
func (s Snapshot) Nodes() []graph.Node {
	out := make([]graph.Node, 0, len(s.Actions)+len(s.DecisionPoints)+len(s.Notes))
	for _, a := range s.Actions {
		out = append(out, graph.ActionNode(a))
	}
	for _, d := range s.DecisionPoints {
		out = append(out, graph.DecisionNode(d))
	}
	for _, n := range s.Notes {
		out = append(out, graph.NoteNode(n))
	}
	return out
}

// ParseSnapshot decodes a persisted snapshot. Missing node fields receive
// their construction defaults.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, schema.NewErrorf(schema.ErrCodeValidation, "decode timeline snapshot: %v", err).WithCause(err)
	}
	return s, nil
}

// ToJSON returns a deep copy of the engine state in its persisted shape.
func (e *Engine) ToJSON() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Actions:          []*graph.Action{},
		DecisionPoints:   []*graph.DecisionPoint{},
		Notes:            []*graph.Note{},
		ExecutionHistory: slices.Clone(e.history),
		IsRunning:        e.running,
	}
	if snap.ExecutionHistory == nil {
		snap.ExecutionHistory = []string{}
	}
	if e.currentNodeID != "" {
		id := e.currentNodeID
		snap.CurrentNodeID = &id
	}
	for _, id := range e.order {
		node := e.nodes[id]
		switch node.Kind {
		case graph.KindAction:
			snap.Actions = append(snap.Actions, node.Action.Clone())
		case graph.KindDecision:
			snap.DecisionPoints = append(snap.DecisionPoints, node.Decision.Clone())
		case graph.KindNote:
			snap.Notes = append(snap.Notes, node.Note.Clone())
		}
	}
	return snap
}

// MarshalJSON encodes the engine as its snapshot.
func (e *Engine) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

// FromJSON replaces the engine state with a persisted snapshot.
func (e *Engine) FromJSON(data []byte) error {
	snap, err := ParseSnapshot(data)
	if err != nil {
		return err
	}
	return e.Restore(snap)
}

// Restore clears every collection and rehydrates the snapshot. The saved
// running flag is kept but no ticker is armed until the run is driven again.
// The engine is left untouched when the snapshot is invalid.
func (e *Engine) Restore(snap Snapshot) error {
	if err := checkSnapshot(snap); err != nil {
		return err
	}
	return e.update(func() (bool, error) {
		e.cancelTickLocked()
		e.nodes = make(map[string]graph.Node)
		e.order = nil
		for _, node := range snap.Nodes() {
			e.putLocked(node.Clone())
		}
		e.currentNodeID = ""
		if snap.CurrentNodeID != nil {
			e.currentNodeID = *snap.CurrentNodeID
		}
		e.history = slices.Clone(snap.ExecutionHistory)
		if e.history == nil {
			e.history = []string{}
		}
		e.running = snap.IsRunning
		e.manual = false
		e.timelineComplete = false
		e.finished = false
		e.sessionStart = nil
		e.sessionEnd = nil
		e.sessionID = ""
		e.queue(schema.EventTimelineRestored, e.currentNodeID, nil)
		return true, nil
	})
}

func checkSnapshot(snap Snapshot) error {
	for i, a := range snap.Actions {
		if a == nil || a.ID == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "actions[%d] has no id", i)
		}
		if a.Duration <= 0 {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"action duration must be a positive number of milliseconds, got %d", a.Duration).WithNode(a.ID)
		}
	}
	for i, d := range snap.DecisionPoints {
		if d == nil || d.ID == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "decisionPoints[%d] has no id", i)
		}
	}
	for i, n := range snap.Notes {
		if n == nil || n.ID == "" {
			return schema.NewError(schema.ErrCodeValidation, fmt.Sprintf("notes[%d] has no id", i))
		}
	}
	return nil
}
