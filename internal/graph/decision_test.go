package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/timeline/pkg/schema"
)

func TestDecisionPoint_Lifecycle(t *testing.T) {
	d, err := NewDecisionPoint(DecisionSpec{
		ID:   "d1",
		Name: "Which way?",
		Options: []DecisionOption{
			{ActionID: "left", Label: "Left"},
			{ActionID: "right", Label: "Right"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, schema.DecisionStatusPending, d.Status)

	assert.False(t, d.SelectOption("left"), "pending decisions cannot be resolved")

	d.Activate()
	assert.Equal(t, schema.DecisionStatusActive, d.Status)
	assert.True(t, d.HasOption("right"))
	assert.False(t, d.HasOption("up"))

	assert.True(t, d.SelectOption("right"))
	assert.Equal(t, schema.DecisionStatusCompleted, d.Status)
	assert.Equal(t, "right", d.Selected())

	assert.False(t, d.SelectOption("left"), "completed decisions are terminal for this pass")

	d.Activate()
	assert.Equal(t, "", d.Selected(), "re-activation clears the previous choice")

	d.Reset()
	assert.Equal(t, schema.DecisionStatusPending, d.Status)
	assert.Nil(t, d.SelectedOption)
}

func TestDecisionPoint_RequiresID(t *testing.T) {
	_, err := NewDecisionPoint(DecisionSpec{Name: "x"})
	require.Error(t, err)
}

func TestDecisionPoint_UnmarshalDefaults(t *testing.T) {
	var d DecisionPoint
	require.NoError(t, json.Unmarshal([]byte(`{"id":"d1","name":"n"}`), &d))
	assert.Equal(t, schema.DecisionStatusPending, d.Status)
	assert.NotNil(t, d.Options)
}

func TestNode_Union(t *testing.T) {
	a, _ := NewAction(ActionSpec{ID: "a", Name: "A", Duration: 10, Connections: []string{"d"}})
	d, _ := NewDecisionPoint(DecisionSpec{ID: "d", Name: "D", Options: []DecisionOption{{ActionID: "a", Label: "again"}}})
	n, _ := NewNote(NoteSpec{ID: "n", Title: "N"})

	nodes := []Node{ActionNode(a), DecisionNode(d), NoteNode(n)}
	ids := []string{"a", "d", "n"}
	for i, node := range nodes {
		assert.Equal(t, ids[i], node.ID())
	}
	assert.True(t, nodes[0].Executable())
	assert.True(t, nodes[1].Executable())
	assert.False(t, nodes[2].Executable())

	assert.Equal(t, []string{"d"}, nodes[0].Outgoing())
	assert.Equal(t, []string{"a"}, nodes[1].Outgoing())
	assert.Empty(t, nodes[2].Outgoing())

	m := nodes[0].Map()
	assert.Equal(t, "action", m["kind"])
	assert.Equal(t, "pending", m["status"])
	assert.Equal(t, float64(10), m["duration"])

	assert.Equal(t, "N", nodes[2].Name())
	for _, node := range nodes {
		assert.Equal(t, node.Name(), node.Map()["name"], node.ID())
	}
	assert.Equal(t, "note", nodes[2].Map()["kind"])

	clone := nodes[1].Clone()
	clone.Decision.Options[0].Label = "changed"
	assert.Equal(t, "again", d.Options[0].Label)
}
