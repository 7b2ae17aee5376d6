package store

import (
	"context"
	"encoding/json"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Timelines
	CreateTimeline(ctx context.Context, tl *Timeline) error
	GetTimeline(ctx context.Context, id string) (*Timeline, error)
	UpdateTimeline(ctx context.Context, id string, update TimelineUpdate) error
	SaveSnapshot(ctx context.Context, id string, snapshot json.RawMessage) error
	ListTimelines(ctx context.Context, filter TimelineFilter) ([]*Timeline, error)
	DeleteTimeline(ctx context.Context, id string) error

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, timelineID string, since int64) ([]*Event, error)
	QueryEvents(ctx context.Context, filter EventFilter) ([]*Event, error)

	// Sessions
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)

	// Schedules
	CreateSchedule(ctx context.Context, sched *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
