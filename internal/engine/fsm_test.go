package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/pkg/schema"
)

// mockAppender records appended events for assertions.
type mockAppender struct {
	mu     sync.Mutex
	events []*store.Event
}

func (m *mockAppender) AppendEvent(_ context.Context, event *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockAppender) Events() []*store.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*store.Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func (m *mockAppender) Types() []string {
	var out []string
	for _, e := range m.Events() {
		out = append(out, e.Type)
	}
	return out
}

// failAppender always returns an error.
type failAppender struct{}

func (f *failAppender) AppendEvent(_ context.Context, _ *store.Event) error {
	return errors.New("store unavailable")
}

func TestActionTransitions(t *testing.T) {
	valid := [][2]schema.ActionStatus{
		{schema.ActionStatusPending, schema.ActionStatusRunning},
		{schema.ActionStatusRunning, schema.ActionStatusPaused},
		{schema.ActionStatusRunning, schema.ActionStatusCompleted},
		{schema.ActionStatusPaused, schema.ActionStatusRunning},
		{schema.ActionStatusPaused, schema.ActionStatusCompleted},
		{schema.ActionStatusCompleted, schema.ActionStatusRunning},
	}
	for _, tc := range valid {
		assert.NoError(t, checkActionTransition("a", tc[0], tc[1]), "%s -> %s", tc[0], tc[1])
	}

	invalid := [][2]schema.ActionStatus{
		{schema.ActionStatusPending, schema.ActionStatusCompleted},
		{schema.ActionStatusPending, schema.ActionStatusPaused},
		{schema.ActionStatusCompleted, schema.ActionStatusPaused},
	}
	for _, tc := range invalid {
		err := checkActionTransition("a", tc[0], tc[1])
		require.Error(t, err)
		var te *schema.TimelineError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, schema.ErrCodeInvalidTransition, te.Code)
		assert.Equal(t, "a", te.NodeID)
		assert.Contains(t, te.Message, string(tc[0]))
	}
}

func TestDecisionTransitions(t *testing.T) {
	assert.NoError(t, checkDecisionTransition("d", schema.DecisionStatusPending, schema.DecisionStatusActive))
	assert.NoError(t, checkDecisionTransition("d", schema.DecisionStatusActive, schema.DecisionStatusCompleted))
	assert.NoError(t, checkDecisionTransition("d", schema.DecisionStatusCompleted, schema.DecisionStatusActive))
	assert.Error(t, checkDecisionTransition("d", schema.DecisionStatusPending, schema.DecisionStatusCompleted))
}

func TestEventTypes(t *testing.T) {
	assert.Equal(t, schema.EventActionStarted, actionEventType(schema.ActionStatusPending, schema.ActionStatusRunning))
	assert.Equal(t, schema.EventActionStarted, actionEventType(schema.ActionStatusCompleted, schema.ActionStatusRunning))
	assert.Equal(t, schema.EventActionResumed, actionEventType(schema.ActionStatusPaused, schema.ActionStatusRunning))
	assert.Equal(t, schema.EventActionPaused, actionEventType(schema.ActionStatusRunning, schema.ActionStatusPaused))
	assert.Equal(t, schema.EventActionCompleted, actionEventType(schema.ActionStatusRunning, schema.ActionStatusCompleted))
	assert.Equal(t, schema.EventDecisionActivated, decisionEventType(schema.DecisionStatusActive))
	assert.Equal(t, schema.EventDecisionResolved, decisionEventType(schema.DecisionStatusCompleted))
	assert.Equal(t, "", decisionEventType(schema.DecisionStatusPending))
}
