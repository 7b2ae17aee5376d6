package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/pkg/schema"
)

// Build constructs a DiagramModel from a snapshot. graph.Analyze supplies
// roots, edges and levels; a virtual start node leads to the roots and every
// node without outgoing links leads to a virtual end node.
func Build(title string, snap engine.Snapshot) *DiagramModel {
	nodes := snap.Nodes()
	topo := graph.Analyze(nodes)
	current := ""
	if snap.CurrentNodeID != nil {
		current = *snap.CurrentNodeID
	}
	taken := takenEdges(snap.ExecutionHistory)

	if title == "" {
		title = "Timeline"
	}
	model := &DiagramModel{Title: title}

	start := &Node{ID: StartID, Label: "Start", Kind: NodeKindStart}
	model.Nodes = append(model.Nodes, start)

	index := make(map[string]graph.Node, len(nodes))
	for _, n := range nodes {
		index[n.ID()] = n
		dn := toNode(n)
		dn.Current = n.ID() == current
		if n.Kind == graph.KindNote {
			model.Notes = append(model.Notes, dn)
			continue
		}
		model.Nodes = append(model.Nodes, dn)
	}
	if len(topo.Order) > 0 {
		model.Nodes = append(model.Nodes, &Node{ID: EndID, Label: "End", Kind: NodeKindEnd})
	}

	model.Edges = buildEdges(topo, index, taken)
	model.Levels = buildLevels(topo)
	return model
}

func toNode(n graph.Node) *Node {
	switch n.Kind {
	case graph.KindAction:
		a := n.Action
		overlay := &StatusOverlay{Status: string(a.Status), Progress: a.Progress}
		if a.ActualDuration != nil {
			overlay.DurationMs = *a.ActualDuration
		}
		return &Node{
			ID:     a.ID,
			Label:  labelOr(a.Name, a.ID),
			Detail: graph.FormatDuration(a.Duration),
			Kind:   NodeKindAction,
			Status: overlay,
		}
	case graph.KindDecision:
		d := n.Decision
		return &Node{
			ID:     d.ID,
			Label:  labelOr(d.Name, d.ID),
			Detail: fmt.Sprintf("%d options", len(d.Options)),
			Kind:   NodeKindDecision,
			Status: &StatusOverlay{Status: string(d.Status)},
		}
	default:
		note := n.Note
		return &Node{
			ID:     note.ID,
			Label:  labelOr(note.Title, note.ID),
			Detail: firstLine(note.Content),
			Kind:   NodeKindNote,
		}
	}
}

func labelOr(label, fallback string) string {
	if strings.TrimSpace(label) == "" {
		return fallback
	}
	return label
}

// takenEdges returns the consecutive history pairs.
func takenEdges(history []string) map[[2]string]bool {
	taken := make(map[[2]string]bool, len(history))
	for i := 1; i < len(history); i++ {
		taken[[2]string{history[i-1], history[i]}] = true
	}
	return taken
}

func buildEdges(topo *graph.Topology, index map[string]graph.Node, taken map[[2]string]bool) []Edge {
	var edges []Edge

	roots := topo.Roots
	if len(roots) == 0 && len(topo.Order) > 0 {
		roots = topo.Order[:1]
	}
	for _, root := range roots {
		edges = append(edges, Edge{From: StartID, To: root})
	}

	for _, id := range topo.Order {
		n := index[id]
		for _, to := range topo.Edges[id] {
			e := Edge{From: id, To: to, Taken: taken[[2]string{id, to}]}
			if n.Kind == graph.KindDecision {
				for _, opt := range n.Decision.Options {
					if opt.ActionID == to {
						e.Label = opt.Label
						break
					}
				}
				if n.Decision.Status == schema.DecisionStatusCompleted && n.Decision.Selected() == to {
					e.Taken = true
				}
			}
			edges = append(edges, e)
		}
		if len(topo.Edges[id]) == 0 {
			edges = append(edges, Edge{From: id, To: EndID})
		}
	}
	return edges
}

// buildLevels wraps the topology levels with the virtual start and end.
func buildLevels(topo *graph.Topology) [][]string {
	levels := make([][]string, 0, len(topo.Levels)+2)
	levels = append(levels, []string{StartID})
	levels = append(levels, topo.Levels...)
	if len(topo.Order) > 0 {
		levels = append(levels, []string{EndID})
	}
	return levels
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// findNode looks up a node by ID.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
