package engine

import (
	"context"
	"slices"

	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/pkg/schema"
)

// EventAppender is satisfied by the Store and EventLog; the engine emits one
// event per transition through it.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// ValidActionTransitions defines the allowed status changes of an action.
// completed -> running happens when traversal revisits a node on a cycle.
var ValidActionTransitions = map[schema.ActionStatus][]schema.ActionStatus{
	schema.ActionStatusPending:   {schema.ActionStatusRunning},
	schema.ActionStatusRunning:   {schema.ActionStatusRunning, schema.ActionStatusPaused, schema.ActionStatusCompleted},
	schema.ActionStatusPaused:    {schema.ActionStatusRunning, schema.ActionStatusCompleted},
	schema.ActionStatusCompleted: {schema.ActionStatusRunning},
}

// ValidDecisionTransitions defines the allowed status changes of a decision point.
var ValidDecisionTransitions = map[schema.DecisionStatus][]schema.DecisionStatus{
	schema.DecisionStatusPending:   {schema.DecisionStatusActive},
	schema.DecisionStatusActive:    {schema.DecisionStatusActive, schema.DecisionStatusCompleted},
	schema.DecisionStatusCompleted: {schema.DecisionStatusActive},
}

func checkActionTransition(nodeID string, from, to schema.ActionStatus) error {
	if slices.Contains(ValidActionTransitions[from], to) {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid action transition: %s -> %s", from, to).
		WithNode(nodeID).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

func checkDecisionTransition(nodeID string, from, to schema.DecisionStatus) error {
	if slices.Contains(ValidDecisionTransitions[from], to) {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid decision transition: %s -> %s", from, to).
		WithNode(nodeID).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

// actionEventType maps a transition onto the event it emits. from is needed
// to tell a resume apart from a fresh start.
func actionEventType(from, to schema.ActionStatus) string {
	switch to {
	case schema.ActionStatusRunning:
		if from == schema.ActionStatusPaused {
			return schema.EventActionResumed
		}
		return schema.EventActionStarted
	case schema.ActionStatusPaused:
		return schema.EventActionPaused
	case schema.ActionStatusCompleted:
		return schema.EventActionCompleted
	default:
		return ""
	}
}

func decisionEventType(to schema.DecisionStatus) string {
	switch to {
	case schema.DecisionStatusActive:
		return schema.EventDecisionActivated
	case schema.DecisionStatusCompleted:
		return schema.EventDecisionResolved
	default:
		return ""
	}
}
