package schema

// Event type constants for the timeline event log.
const (
	EventTimelineStarted   = "timeline_started"
	EventTimelineStopped   = "timeline_stopped"
	EventTimelineCompleted = "timeline_completed"
	EventTimelineReset     = "timeline_reset"
	EventTimelinePaused    = "timeline_paused"
	EventTimelineResumed   = "timeline_resumed"
	EventTimelineRestored  = "timeline_restored"
	EventTraversalHalted   = "traversal_halted"

	EventActionStarted   = "action_started"
	EventActionPaused    = "action_paused"
	EventActionResumed   = "action_resumed"
	EventActionCompleted = "action_completed"

	EventDecisionActivated = "decision_activated"
	EventDecisionResolved  = "decision_resolved"

	EventManualModeStarted      = "manual_mode_started"
	EventManualModeEnded        = "manual_mode_ended"
	EventManualTimelineComplete = "manual_timeline_complete"

	EventGraphChanged = "graph_changed"
)

// ActionStatus represents the lifecycle state of an action node.
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusPaused    ActionStatus = "paused"
	ActionStatusCompleted ActionStatus = "completed"
)

// DecisionStatus represents the lifecycle state of a decision point.
type DecisionStatus string

const (
	DecisionStatusPending   DecisionStatus = "pending"
	DecisionStatusActive    DecisionStatus = "active"
	DecisionStatusCompleted DecisionStatus = "completed"
)

// EngineState is the effective machine state derived from the engine flags
// and the status of the current node.
type EngineState string

const (
	EngineStateIdle                  EngineState = "idle"
	EngineStateExecutingAction       EngineState = "executing_action"
	EngineStateExecutingDecision     EngineState = "executing_decision"
	EngineStateManualExecutingAction EngineState = "manual_executing_action"
	EngineStatePaused                EngineState = "paused"
	EngineStateComplete              EngineState = "complete"
	EngineStateManualComplete        EngineState = "manual_complete"
)
