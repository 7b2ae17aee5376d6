package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func act(t *testing.T, id string, conns ...string) Node {
	t.Helper()
	a, err := NewAction(ActionSpec{ID: id, Name: id, Duration: 1000, Connections: conns})
	require.NoError(t, err)
	return ActionNode(a)
}

func dec(t *testing.T, id string, targets ...string) Node {
	t.Helper()
	var opts []DecisionOption
	for _, to := range targets {
		opts = append(opts, DecisionOption{ActionID: to, Label: to})
	}
	d, err := NewDecisionPoint(DecisionSpec{ID: id, Name: id, Options: opts})
	require.NoError(t, err)
	return DecisionNode(d)
}

func TestAnalyze_Linear(t *testing.T) {
	topo := Analyze([]Node{act(t, "A", "B"), act(t, "B", "C"), act(t, "C")})

	assert.Equal(t, []string{"A"}, topo.Roots)
	assert.Equal(t, []string{"A", "B", "C"}, topo.Sorted)
	assert.False(t, topo.Cyclic)
	assert.Equal(t, [][]string{{"A"}, {"B"}, {"C"}}, topo.Levels)
	assert.Equal(t, []string{"A"}, topo.Reverse["B"])
	assert.Empty(t, topo.Dangling)
}

func TestAnalyze_BranchLevels(t *testing.T) {
	topo := Analyze([]Node{
		act(t, "A", "D"),
		dec(t, "D", "B", "C"),
		act(t, "B", "E"),
		act(t, "C", "E"),
		act(t, "E"),
	})

	assert.Equal(t, [][]string{{"A"}, {"D"}, {"B", "C"}, {"E"}}, topo.Levels)
	assert.Equal(t, []string{"A", "D", "B", "C", "E"}, topo.Sorted)
	assert.Equal(t, KindDecision, topo.Kinds["D"])
}

func TestAnalyze_CycleThroughDecision(t *testing.T) {
	topo := Analyze([]Node{act(t, "A", "D"), dec(t, "D", "A", "B"), act(t, "B")})

	assert.True(t, topo.Cyclic)
	assert.ElementsMatch(t, []string{"A", "D", "B"}, topo.Cycle)
	assert.Empty(t, topo.Roots)
	assert.Equal(t, [][]string{{"A"}, {"D"}, {"B"}}, topo.Levels)
}

func TestAnalyze_DanglingAndNotes(t *testing.T) {
	note, err := NewNote(NoteSpec{ID: "N", Title: "n"})
	require.NoError(t, err)
	topo := Analyze([]Node{act(t, "A", "ghost", "N", "B", "B"), act(t, "B"), NoteNode(note)})

	assert.Equal(t, []string{"A", "B"}, topo.Order)
	assert.Equal(t, []Edge{{From: "A", To: "ghost"}, {From: "A", To: "N"}}, topo.Dangling)
	assert.Equal(t, []string{"B"}, topo.Edges["A"])
}

func TestTopology_Reachability(t *testing.T) {
	topo := Analyze([]Node{act(t, "A", "B"), act(t, "B"), act(t, "X", "B")})

	assert.Equal(t, []string{"A", "B"}, topo.Reachable("A"))
	assert.Equal(t, []string{"X"}, topo.Unreachable("A"))
	assert.Nil(t, topo.Reachable("missing"))
	assert.Equal(t, []string{"A", "X"}, topo.Roots)
}
