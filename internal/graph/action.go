package graph

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rendis/timeline/pkg/schema"
)

// ExecutionRecord is one completed run of an action.
type ExecutionRecord struct {
	StartTime int64     `json:"startTime"`
	EndTime   int64     `json:"endTime"`
	Duration  int64     `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId,omitempty"`
}

// ActionSpec carries the construction-time inputs of an action.
type ActionSpec struct {
	ID          string
	Name        string
	Description string
	Duration    int64
	X, Y        float64
	Connections []string
}

// Action is a timed unit of work. Times are unix milliseconds.
type Action struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	Duration         int64               `json:"duration"`
	X                float64             `json:"x"`
	Y                float64             `json:"y"`
	Connections      []string            `json:"connections"`
	Status           schema.ActionStatus `json:"status"`
	StartTime        *int64              `json:"startTime"`
	EndTime          *int64              `json:"endTime"`
	Progress         float64             `json:"progress"`
	ActualDuration   *int64              `json:"actualDuration"`
	ExecutionHistory []ExecutionRecord   `json:"executionHistory"`
	PausedElapsed    int64               `json:"pausedElapsed,omitempty"`
}

func defaultAction() Action {
	return Action{
		Connections:      []string{},
		Status:           schema.ActionStatusPending,
		ExecutionHistory: []ExecutionRecord{},
	}
}

// NewAction validates the spec and returns a pending action.
func NewAction(spec ActionSpec) (*Action, error) {
	if strings.TrimSpace(spec.ID) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "action id is required")
	}
	if spec.Duration <= 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"action duration must be a positive number of milliseconds, got %d", spec.Duration).
			WithNode(spec.ID)
	}
	a := defaultAction()
	a.ID = spec.ID
	a.Name = spec.Name
	a.Description = spec.Description
	a.Duration = spec.Duration
	a.X, a.Y = spec.X, spec.Y
	if len(spec.Connections) > 0 {
		a.Connections = append([]string(nil), spec.Connections...)
	}
	return &a, nil
}

// UnmarshalJSON applies construction defaults before overwriting them with
// the saved fields, so payloads written before a field existed still decode.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	p := plain(defaultAction())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Connections == nil {
		p.Connections = []string{}
	}
	if p.ExecutionHistory == nil {
		p.ExecutionHistory = []ExecutionRecord{}
	}
	if p.Status == "" {
		p.Status = schema.ActionStatusPending
	}
	*a = Action(p)
	return nil
}

// Position returns the canvas position.
func (a *Action) Position() Position { return Position{X: a.X, Y: a.Y} }

// Start marks the action running from now and computes its planned end.
func (a *Action) Start(now time.Time) {
	start := now.UnixMilli()
	end := start + a.Duration
	a.Status = schema.ActionStatusRunning
	a.StartTime = &start
	a.EndTime = &end
	a.Progress = 0
	a.PausedElapsed = 0
}

// Pause freezes the action. StartTime is kept; the elapsed time so far is
// remembered so Resume can continue from it.
func (a *Action) Pause(now time.Time) {
	if a.Status != schema.ActionStatusRunning {
		return
	}
	a.PausedElapsed = a.elapsed(now)
	a.Status = schema.ActionStatusPaused
}

// Resume restarts a paused action, shifting StartTime so the elapsed time
// recorded at pause is preserved.
func (a *Action) Resume(now time.Time) {
	if a.Status != schema.ActionStatusPaused {
		return
	}
	start := now.UnixMilli() - a.PausedElapsed
	end := start + a.Duration
	a.StartTime = &start
	a.EndTime = &end
	a.PausedElapsed = 0
	a.Status = schema.ActionStatusRunning
}

// UpdateProgress recomputes progress from wall-clock elapsed time. When
// autoComplete is set and progress reaches 100 the action completes and
// UpdateProgress returns true.
func (a *Action) UpdateProgress(now time.Time, autoComplete bool) bool {
	if a.Status != schema.ActionStatusRunning || a.StartTime == nil {
		return false
	}
	elapsed := a.elapsed(now)
	progress := float64(elapsed) / float64(a.Duration) * 100
	if progress > 100 {
		progress = 100
	}
	if progress < 0 {
		progress = 0
	}
	a.Progress = progress
	if autoComplete && progress >= 100 {
		a.Complete(now, "")
		return true
	}
	return false
}

// Complete stamps the actual duration, appends a history record and sets
// progress to 100. sessionID tags the record when running in a manual session.
func (a *Action) Complete(now time.Time, sessionID string) {
	end := now.UnixMilli()
	var start int64
	if a.StartTime != nil {
		start = *a.StartTime
	} else {
		start = end
	}
	actual := a.elapsed(now)
	a.ActualDuration = &actual
	a.ExecutionHistory = append(a.ExecutionHistory, ExecutionRecord{
		StartTime: start,
		EndTime:   end,
		Duration:  actual,
		Timestamp: now.UTC(),
		SessionID: sessionID,
	})
	a.Progress = 100
	a.PausedElapsed = 0
	a.Status = schema.ActionStatusCompleted
}

// Reset returns the action to its pending defaults, keeping structure.
func (a *Action) Reset() {
	a.Status = schema.ActionStatusPending
	a.StartTime = nil
	a.EndTime = nil
	a.Progress = 0
	a.ActualDuration = nil
	a.ExecutionHistory = []ExecutionRecord{}
	a.PausedElapsed = 0
}

// Remaining returns the milliseconds left before the planned end.
func (a *Action) Remaining(now time.Time) int64 {
	switch a.Status {
	case schema.ActionStatusCompleted:
		return 0
	case schema.ActionStatusPending:
		return a.Duration
	}
	left := a.Duration - a.elapsed(now)
	if left < 0 {
		return 0
	}
	return left
}

func (a *Action) elapsed(now time.Time) int64 {
	if a.Status == schema.ActionStatusPaused {
		return a.PausedElapsed
	}
	if a.StartTime == nil {
		return 0
	}
	d := now.UnixMilli() - *a.StartTime
	if d < 0 {
		return 0
	}
	return d
}

// Clone returns a deep copy.
func (a *Action) Clone() *Action {
	c := *a
	c.Connections = append([]string{}, a.Connections...)
	c.ExecutionHistory = append([]ExecutionRecord{}, a.ExecutionHistory...)
	c.StartTime = cloneInt(a.StartTime)
	c.EndTime = cloneInt(a.EndTime)
	c.ActualDuration = cloneInt(a.ActualDuration)
	return &c
}

// Map returns the action as plain data keyed by JSON field names.
func (a *Action) Map() map[string]any {
	return toMap(a)
}

func cloneInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	m := map[string]any{}
	_ = json.Unmarshal(b, &m)
	return m
}
