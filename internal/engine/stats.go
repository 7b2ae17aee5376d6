package engine

import (
	"github.com/rendis/timeline/internal/graph"
)

// ActionStat compares planned and actual time for one action.
type ActionStat struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExpectedMs int64  `json:"expectedMs"`
	ActualMs   int64  `json:"actualMs"`
	VarianceMs int64  `json:"varianceMs"`
	Runs       int    `json:"runs"`
}

// SessionStats aggregates completed actions for reporting.
type SessionStats struct {
	SessionID       string       `json:"sessionId,omitempty"`
	StartTime       *int64       `json:"startTime,omitempty"`
	EndTime         *int64       `json:"endTime,omitempty"`
	TotalExpectedMs int64        `json:"totalExpectedMs"`
	TotalActualMs   int64        `json:"totalActualMs"`
	Actions         []ActionStat `json:"actions"`
}

// GetSessionStats aggregates every action whose last actual duration is
// positive. Each action contributes only its most recent completion, so runs
// from earlier sessions without an intervening Reset are not distinguished;
// use SessionBreakdown for a session-scoped view.
func (e *Engine) GetSessionStats() SessionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionStatsLocked()
}

func (e *Engine) sessionStatsLocked() SessionStats {
	stats := SessionStats{
		SessionID: e.sessionID,
		StartTime: cloneMillis(e.sessionStart),
		EndTime:   cloneMillis(e.sessionEnd),
		Actions:   []ActionStat{},
	}
	for _, a := range e.actionsLocked() {
		if a.ActualDuration == nil || *a.ActualDuration <= 0 {
			continue
		}
		stats.add(ActionStat{
			ID:         a.ID,
			Name:       a.Name,
			ExpectedMs: a.Duration,
			ActualMs:   *a.ActualDuration,
			Runs:       1,
		})
	}
	return stats
}

// SessionBreakdown sums the execution records tagged with sessionID. Unlike
// GetSessionStats it counts every run of an action within that session.
func (e *Engine) SessionBreakdown(sessionID string) SessionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := SessionStats{SessionID: sessionID, Actions: []ActionStat{}}
	var first, last int64
	for _, a := range e.actionsLocked() {
		st := ActionStat{ID: a.ID, Name: a.Name}
		for _, rec := range a.ExecutionHistory {
			if rec.SessionID != sessionID {
				continue
			}
			st.Runs++
			st.ActualMs += rec.Duration
			st.ExpectedMs += a.Duration
			if first == 0 || rec.StartTime < first {
				first = rec.StartTime
			}
			if rec.EndTime > last {
				last = rec.EndTime
			}
		}
		if st.Runs > 0 {
			stats.add(st)
		}
	}
	if first != 0 {
		stats.StartTime = &first
		stats.EndTime = &last
	}
	return stats
}

func (s *SessionStats) add(st ActionStat) {
	st.VarianceMs = st.ActualMs - st.ExpectedMs
	s.TotalExpectedMs += st.ExpectedMs
	s.TotalActualMs += st.ActualMs
	s.Actions = append(s.Actions, st)
}

func (e *Engine) actionsLocked() []*graph.Action {
	out := make([]*graph.Action, 0, len(e.order))
	for _, id := range e.order {
		if n := e.nodes[id]; n.Kind == graph.KindAction {
			out = append(out, n.Action)
		}
	}
	return out
}
