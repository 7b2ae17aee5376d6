package graph

import "slices"

// Edge is a directed link between two nodes.
type Edge struct {
	From string
	To   string
}

// Topology is the adjacency view of a timeline graph. Notes are excluded.
// Timelines may loop through decision points, so a cycle is reported rather
// than rejected.
type Topology struct {
	Order    []string            // executable node ids in insertion order
	Kinds    map[string]Kind     // node id → kind
	Edges    map[string][]string // node id → outgoing targets that exist
	Reverse  map[string][]string // node id → nodes leading to it
	Dangling []Edge              // links to ids that are missing or are notes
	Roots    []string            // nodes nothing leads to
	Sorted   []string            // Kahn order; shorter than Order when Cyclic
	Cyclic   bool
	Cycle    []string // nodes left over by Kahn's algorithm
	Levels   [][]string
}

// Analyze builds the topology of nodes. Node order is preserved in Roots,
// Sorted and each level so results are deterministic.
func Analyze(nodes []Node) *Topology {
	t := &Topology{
		Kinds:   make(map[string]Kind, len(nodes)),
		Edges:   make(map[string][]string, len(nodes)),
		Reverse: make(map[string][]string, len(nodes)),
	}
	for _, n := range nodes {
		if !n.Executable() {
			continue
		}
		if _, dup := t.Kinds[n.ID()]; !dup {
			t.Order = append(t.Order, n.ID())
		}
		t.Kinds[n.ID()] = n.Kind
	}

	for _, n := range nodes {
		if !n.Executable() {
			continue
		}
		id := n.ID()
		for _, to := range n.Outgoing() {
			if _, ok := t.Kinds[to]; !ok {
				t.Dangling = append(t.Dangling, Edge{From: id, To: to})
				continue
			}
			if slices.Contains(t.Edges[id], to) {
				continue
			}
			t.Edges[id] = append(t.Edges[id], to)
			t.Reverse[to] = append(t.Reverse[to], id)
		}
	}

	// Kahn's algorithm.
	inDegree := make(map[string]int, len(t.Order))
	for _, id := range t.Order {
		inDegree[id] = len(t.Reverse[id])
	}
	var queue []string
	for _, id := range t.Order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	t.Roots = slices.Clone(queue)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		t.Sorted = append(t.Sorted, id)
		for _, next := range t.Edges[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(t.Sorted) != len(t.Order) {
		t.Cyclic = true
		for _, id := range t.Order {
			if !slices.Contains(t.Sorted, id) {
				t.Cycle = append(t.Cycle, id)
			}
		}
	}

	t.Levels = t.computeLevels()
	return t
}

// computeLevels assigns each node its shortest distance from a root. Nodes
// only reachable through a cycle start a new search in insertion order.
func (t *Topology) computeLevels() [][]string {
	depth := make(map[string]int, len(t.Order))
	bfs := func(starts []string, base int) {
		queue := make([]string, 0, len(starts))
		for _, s := range starts {
			if _, seen := depth[s]; seen {
				continue
			}
			depth[s] = base
			queue = append(queue, s)
		}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for _, next := range t.Edges[id] {
				if _, seen := depth[next]; seen {
					continue
				}
				depth[next] = depth[id] + 1
				queue = append(queue, next)
			}
		}
	}
	bfs(t.Roots, 0)
	for _, id := range t.Order {
		if _, seen := depth[id]; !seen {
			bfs([]string{id}, 0)
		}
	}

	maxLevel := -1
	for _, d := range depth {
		maxLevel = max(maxLevel, d)
	}
	levels := make([][]string, maxLevel+1)
	for _, id := range t.Order {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels
}

// Reachable returns the nodes reachable from start, start included, in
// breadth-first order. An unknown start yields nil.
func (t *Topology) Reachable(start string) []string {
	if _, ok := t.Kinds[start]; !ok {
		return nil
	}
	seen := map[string]bool{start: true}
	out := []string{start}
	for i := 0; i < len(out); i++ {
		for _, next := range t.Edges[out[i]] {
			if !seen[next] {
				seen[next] = true
				out = append(out, next)
			}
		}
	}
	return out
}

// Unreachable returns the nodes that cannot be reached from start.
func (t *Topology) Unreachable(start string) []string {
	reach := t.Reachable(start)
	var out []string
	for _, id := range t.Order {
		if !slices.Contains(reach, id) {
			out = append(out, id)
		}
	}
	return out
}
