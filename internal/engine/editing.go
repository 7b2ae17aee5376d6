package engine

import (
	"slices"

	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/pkg/schema"
)

// AddAction builds an action from spec and inserts it. An existing node with
// the same id is replaced in place.
func (e *Engine) AddAction(spec graph.ActionSpec) error {
	a, err := graph.NewAction(spec)
	if err != nil {
		return err
	}
	return e.insert(graph.ActionNode(a))
}

// AddDecisionPoint builds a decision point from spec and inserts it.
func (e *Engine) AddDecisionPoint(spec graph.DecisionSpec) error {
	d, err := graph.NewDecisionPoint(spec)
	if err != nil {
		return err
	}
	return e.insert(graph.DecisionNode(d))
}

// AddNote builds a note from spec and inserts it.
func (e *Engine) AddNote(spec graph.NoteSpec) error {
	n, err := graph.NewNote(spec)
	if err != nil {
		return err
	}
	return e.insert(graph.NoteNode(n))
}

func (e *Engine) insert(node graph.Node) error {
	return e.update(func() (bool, error) {
		e.putLocked(node)
		e.queue(schema.EventGraphChanged, node.ID(), nil)
		return true, nil
	})
}

// putLocked stores node, keeping the original position for a replaced id.
func (e *Engine) putLocked(node graph.Node) {
	id := node.ID()
	if _, exists := e.nodes[id]; !exists {
		e.order = append(e.order, id)
	}
	e.nodes[id] = node
}

// RemoveNode deletes a node and strips every connection and option that
// points to it. Removing the current node stops the run.
func (e *Engine) RemoveNode(id string) bool {
	removed := false
	_ = e.update(func() (bool, error) {
		if _, ok := e.nodes[id]; !ok {
			return false, nil
		}
		delete(e.nodes, id)
		e.order = slices.DeleteFunc(e.order, func(s string) bool { return s == id })
		for _, other := range e.nodes {
			switch other.Kind {
			case graph.KindAction:
				other.Action.Connections = slices.DeleteFunc(other.Action.Connections, func(s string) bool { return s == id })
			case graph.KindDecision:
				other.Decision.Options = slices.DeleteFunc(other.Decision.Options, func(o graph.DecisionOption) bool { return o.ActionID == id })
			}
		}
		if e.currentNodeID == id {
			e.stopLocked()
		}
		e.queue(schema.EventGraphChanged, id, nil)
		removed = true
		return true, nil
	})
	return removed
}

// Connect appends a connection from an action to another executable node.
// Connecting twice to the same target is a no-op.
func (e *Engine) Connect(fromID, toID string) error {
	return e.update(func() (bool, error) {
		from, ok := e.nodes[fromID]
		if !ok {
			return false, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", fromID).WithNode(fromID)
		}
		if from.Kind != graph.KindAction {
			return false, schema.NewErrorf(schema.ErrCodeValidation,
				"only actions have connections; %q is a %s", fromID, from.Kind).WithNode(fromID)
		}
		if err := e.checkTargetLocked(toID); err != nil {
			return false, err
		}
		if slices.Contains(from.Action.Connections, toID) {
			return false, nil
		}
		from.Action.Connections = append(from.Action.Connections, toID)
		e.queue(schema.EventGraphChanged, fromID, nil)
		return true, nil
	})
}

// AddOption appends a branch to a decision point.
func (e *Engine) AddOption(decisionID, actionID, label string) error {
	return e.update(func() (bool, error) {
		node, ok := e.nodes[decisionID]
		if !ok || node.Kind != graph.KindDecision {
			return false, schema.NewErrorf(schema.ErrCodeNotFound, "decision point %q not found", decisionID).WithNode(decisionID)
		}
		if err := e.checkTargetLocked(actionID); err != nil {
			return false, err
		}
		if node.Decision.HasOption(actionID) {
			return false, schema.NewErrorf(schema.ErrCodeConflict,
				"decision point %q already has an option for %q", decisionID, actionID).WithNode(decisionID)
		}
		node.Decision.Options = append(node.Decision.Options, graph.DecisionOption{ActionID: actionID, Label: label})
		e.queue(schema.EventGraphChanged, decisionID, nil)
		return true, nil
	})
}

func (e *Engine) checkTargetLocked(id string) error {
	to, ok := e.nodes[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id).WithNode(id)
	}
	if !to.Executable() {
		return schema.NewErrorf(schema.ErrCodeValidation, "notes cannot be traversal targets").WithNode(id)
	}
	return nil
}
