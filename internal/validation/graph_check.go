package validation

import (
	"fmt"
	"slices"

	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/pkg/schema"
)

// document is the decoded form of a timeline snapshot used by the graph
// checks. It mirrors the persisted shape without importing the engine.
type document struct {
	Actions          []*graph.Action        `json:"actions"`
	DecisionPoints   []*graph.DecisionPoint `json:"decisionPoints"`
	Notes            []*graph.Note          `json:"notes"`
	CurrentNodeID    *string                `json:"currentNodeId"`
	ExecutionHistory []string               `json:"executionHistory"`
}

func (d *document) nodes() []graph.Node {
	out := make([]graph.Node, 0, len(d.Actions)+len(d.DecisionPoints)+len(d.Notes))
	for _, a := range d.Actions {
		out = append(out, graph.ActionNode(a))
	}
	for _, dp := range d.DecisionPoints {
		out = append(out, graph.DecisionNode(dp))
	}
	for _, n := range d.Notes {
		out = append(out, graph.NoteNode(n))
	}
	return out
}

// validateGraph reports broken references as errors and traversal hazards
// as warnings.
func validateGraph(nodes []graph.Node) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	seen := make(map[string]graph.Kind, len(nodes))
	for _, n := range nodes {
		id := n.ID()
		if prev, dup := seen[id]; dup {
			result.AddError(nodePath(n), schema.ErrCodeConflict,
				fmt.Sprintf("id %q is already used by a %s", id, prev))
			continue
		}
		seen[id] = n.Kind
	}

	topo := graph.Analyze(nodes)
	for _, e := range topo.Dangling {
		kind, exists := seen[e.To]
		path := fmt.Sprintf("%s.%s", pathFor(seen[e.From], e.From), outgoingField(seen[e.From]))
		if exists && kind == graph.KindNote {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("references note %q; notes cannot be traversed", e.To))
			continue
		}
		result.AddError(path, schema.ErrCodeNotFound,
			fmt.Sprintf("references non-existent node %q", e.To))
	}

	for _, n := range nodes {
		switch n.Kind {
		case graph.KindAction:
			if len(n.Action.Connections) > 1 {
				result.AddWarning(nodePath(n)+".connections", schema.ErrCodeValidation,
					fmt.Sprintf("action %q has %d connections; traversal stops there, use a decision point to branch",
						n.Action.ID, len(n.Action.Connections)))
			}
		case graph.KindDecision:
			if len(n.Decision.Options) == 0 {
				result.AddWarning(nodePath(n)+".options", schema.ErrCodeValidation,
					fmt.Sprintf("decision point %q has no options and can never be resolved", n.Decision.ID))
			}
		}
	}

	// A loop made only of actions never reaches a decision and runs forever.
	if topo.Cyclic {
		for _, id := range topo.Cycle {
			if topo.Kinds[id] == graph.KindDecision {
				return checkReachability(topo, result)
			}
		}
		result.AddWarning("actions", schema.ErrCodeCycleDetected,
			fmt.Sprintf("actions %v form a loop without a decision point", topo.Cycle))
	}
	return checkReachability(topo, result)
}

func checkReachability(topo *graph.Topology, result *schema.ValidationResult) *schema.ValidationResult {
	if len(topo.Roots) == 0 {
		return result
	}
	reachable := make(map[string]bool, len(topo.Order))
	for _, root := range topo.Roots {
		for _, id := range topo.Reachable(root) {
			reachable[id] = true
		}
	}
	for _, id := range topo.Order {
		if !reachable[id] {
			result.AddWarning(pathFor(topo.Kinds[id], id), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from any start node", id))
		}
	}
	return result
}

// validateCursor checks the saved execution state against the graph.
func validateCursor(doc *document, nodes []graph.Node) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	kinds := make(map[string]graph.Kind, len(nodes))
	for _, n := range nodes {
		kinds[n.ID()] = n.Kind
	}
	if doc.CurrentNodeID != nil && *doc.CurrentNodeID != "" {
		kind, ok := kinds[*doc.CurrentNodeID]
		switch {
		case !ok:
			result.AddError("currentNodeId", schema.ErrCodeNotFound,
				fmt.Sprintf("current node %q does not exist", *doc.CurrentNodeID))
		case kind == graph.KindNote:
			result.AddError("currentNodeId", schema.ErrCodeValidation,
				fmt.Sprintf("current node %q is a note", *doc.CurrentNodeID))
		}
	}
	var unknown []string
	for _, id := range doc.ExecutionHistory {
		if _, ok := kinds[id]; !ok && !slices.Contains(unknown, id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		result.AddWarning("executionHistory", schema.ErrCodeNotFound,
			fmt.Sprintf("history references removed nodes %v", unknown))
	}
	return result
}

func nodePath(n graph.Node) string { return pathFor(n.Kind, n.ID()) }

func pathFor(kind graph.Kind, id string) string {
	switch kind {
	case graph.KindDecision:
		return fmt.Sprintf("decisionPoints[%s]", id)
	case graph.KindNote:
		return fmt.Sprintf("notes[%s]", id)
	default:
		return fmt.Sprintf("actions[%s]", id)
	}
}

func outgoingField(kind graph.Kind) string {
	if kind == graph.KindDecision {
		return "options"
	}
	return "connections"
}
