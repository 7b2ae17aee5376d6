// Package graph defines the node shapes walked by the timeline engine:
// timed actions, branching decision points and decorative notes.
package graph

// Kind discriminates the node variants stored in a timeline graph.
type Kind string

const (
	KindAction   Kind = "action"
	KindDecision Kind = "decision"
	KindNote     Kind = "note"
)

// Position is the presentational location of a node on the designer canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a tagged union over the three node kinds. Exactly one of the
// pointer fields is set, matching Kind.
type Node struct {
	Kind     Kind
	Action   *Action
	Decision *DecisionPoint
	Note     *Note
}

// ActionNode wraps an action.
func ActionNode(a *Action) Node { return Node{Kind: KindAction, Action: a} }

// DecisionNode wraps a decision point.
func DecisionNode(d *DecisionPoint) Node { return Node{Kind: KindDecision, Decision: d} }

// NoteNode wraps a note.
func NoteNode(n *Note) Node { return Node{Kind: KindNote, Note: n} }

// ID returns the identifier of the wrapped node.
func (n Node) ID() string {
	switch n.Kind {
	case KindAction:
		return n.Action.ID
	case KindDecision:
		return n.Decision.ID
	case KindNote:
		return n.Note.ID
	default:
		return ""
	}
}

// Name returns a display name: the action/decision name or the note title.
func (n Node) Name() string {
	switch n.Kind {
	case KindAction:
		return n.Action.Name
	case KindDecision:
		return n.Decision.Name
	case KindNote:
		return n.Note.Title
	default:
		return ""
	}
}

// Executable reports whether the engine can place its cursor on the node.
func (n Node) Executable() bool {
	return n.Kind == KindAction || n.Kind == KindDecision
}

// Outgoing returns the ids this node can lead to: action connections or
// decision option targets. Notes have none.
func (n Node) Outgoing() []string {
	switch n.Kind {
	case KindAction:
		return append([]string(nil), n.Action.Connections...)
	case KindDecision:
		out := make([]string, 0, len(n.Decision.Options))
		for _, o := range n.Decision.Options {
			out = append(out, o.ActionID)
		}
		return out
	default:
		return nil
	}
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	switch n.Kind {
	case KindAction:
		return ActionNode(n.Action.Clone())
	case KindDecision:
		return DecisionNode(n.Decision.Clone())
	case KindNote:
		return NoteNode(n.Note.Clone())
	default:
		return n
	}
}

// Map renders the node as plain data using its JSON field names, plus a
// "kind" discriminator and a "name" every kind carries (a note's is its
// title). Used by expression filters and diagram tooling.
func (n Node) Map() map[string]any {
	var m map[string]any
	switch n.Kind {
	case KindAction:
		m = n.Action.Map()
	case KindDecision:
		m = n.Decision.Map()
	case KindNote:
		m = n.Note.Map()
	default:
		m = map[string]any{}
	}
	m["kind"] = string(n.Kind)
	m["name"] = n.Name()
	return m
}
