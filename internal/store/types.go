package store

import (
	"encoding/json"
	"time"
)

// Timeline is a persisted timeline: metadata plus the engine snapshot.
type Timeline struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Snapshot    json.RawMessage `json:"snapshot"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Event is an immutable entry in a timeline's event log.
type Event struct {
	ID         int64           `json:"id"`
	TimelineID string          `json:"timeline_id"`
	NodeID     string          `json:"node_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// Session is one recorded manual-mode run with its aggregated statistics.
type Session struct {
	ID              string          `json:"id"`
	TimelineID      string          `json:"timeline_id"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	TotalActualMs   int64           `json:"total_actual_ms"`
	TotalExpectedMs int64           `json:"total_expected_ms"`
	ActionCount     int             `json:"action_count"`
	Stats           json.RawMessage `json:"stats,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Schedule starts a stored timeline on a cron expression.
type Schedule struct {
	ID             string     `json:"id"`
	TimelineID     string     `json:"timeline_id"`
	StartNodeID    string     `json:"start_node_id"`
	CronExpression string     `json:"cron_expression"`
	Manual         bool       `json:"manual"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NodeState is the per-node view reconstructed by replaying the event log.
type NodeState struct {
	TimelineID      string     `json:"timeline_id"`
	NodeID          string     `json:"node_id"`
	Status          string     `json:"status"`
	Runs            int        `json:"runs"`
	LastStartedAt   *time.Time `json:"last_started_at,omitempty"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
	LastDurationMs  int64      `json:"last_duration_ms,omitempty"`
	Selected        string     `json:"selected,omitempty"`
}

// --- Filter and update types ---

// TimelineFilter specifies criteria for listing timelines.
type TimelineFilter struct {
	Name   string `json:"name,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// TimelineUpdate specifies mutable metadata of a timeline.
type TimelineUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	TimelineID string     `json:"timeline_id,omitempty"`
	NodeID     string     `json:"node_id,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	EventType  string     `json:"event_type,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	TimelineID string `json:"timeline_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// ScheduleUpdate specifies mutable fields of a schedule.
type ScheduleUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduleFilter specifies criteria for listing schedules.
type ScheduleFilter struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	TimelineID string `json:"timeline_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}
