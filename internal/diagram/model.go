package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindAction   NodeKind = "action"
	NodeKindDecision NodeKind = "decision"
	NodeKindNote     NodeKind = "note"
	NodeKindStart    NodeKind = "start"
	NodeKindEnd      NodeKind = "end"
)

// Virtual node ids added around the timeline graph.
const (
	StartID = "__start__"
	EndID   = "__end__"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
	Notes  []*Node // rendered apart from the flow
}

// Node is one action, decision point, note or virtual endpoint.
type Node struct {
	ID      string
	Label   string
	Detail  string // duration for actions, option count for decisions, content for notes
	Kind    NodeKind
	Current bool
	Status  *StatusOverlay
}

// StatusOverlay carries runtime state for a node.
type StatusOverlay struct {
	Status     string // schema.ActionStatus or schema.DecisionStatus
	Progress   float64
	DurationMs int64 // actual duration once completed
}

// Edge is a connection or a decision option.
type Edge struct {
	From  string
	To    string
	Label string
	Taken bool // traversed in the execution history or the selected option
}
