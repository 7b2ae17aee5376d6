package panel

import (
	"net/http"

	"github.com/rendis/timeline/internal/diagram"
	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/store"
)

// handleListTimelines lists stored timelines. Supports ?name, ?limit and
// ?offset.
func (s *PanelServer) handleListTimelines(w http.ResponseWriter, r *http.Request) {
	filter := store.TimelineFilter{
		Name:   r.URL.Query().Get("name"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	timelines, err := s.deps.Manager.Store().ListTimelines(r.Context(), filter)
	if err != nil {
		writeTimelineError(w, err)
		return
	}
	out := make([]timelineSummary, 0, len(timelines))
	for _, tl := range timelines {
		out = append(out, summarize(tl))
	}
	writeJSON(w, http.StatusOK, map[string]any{"timelines": out})
}

// timelineDetail is the full view of one timeline.
type timelineDetail struct {
	timelineSummary
	Status   engine.Status   `json:"status"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

// handleGetTimeline returns metadata, live status and the snapshot.
func (s *PanelServer) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	tl, e, ok := s.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, timelineDetail{
		timelineSummary: summarize(tl),
		Status:          e.Status(),
		Snapshot:        e.ToJSON(),
	})
}

// handleStats returns session statistics. ?session narrows them to one
// manual session; recorded sessions are always listed.
func (s *PanelServer) handleStats(w http.ResponseWriter, r *http.Request) {
	tl, e, ok := s.load(w, r)
	if !ok {
		return
	}
	stats := e.GetSessionStats()
	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		stats = e.SessionBreakdown(sessionID)
	}
	sessions, err := s.deps.Manager.Store().ListSessions(r.Context(), store.SessionFilter{
		TimelineID: tl.ID,
		Limit:      queryInt(r, "limit", 20),
	})
	if err != nil {
		writeTimelineError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":    stats,
		"sessions": sessions,
	})
}

// handleEvents returns the event log. Supports ?type, ?node, ?session and
// ?limit.
func (s *PanelServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := timelineContext(r)
	id := r.PathValue("id")
	if _, err := s.deps.Manager.Store().GetTimeline(ctx, id); err != nil {
		writeTimelineError(w, err)
		return
	}
	q := r.URL.Query()
	events, err := s.deps.Manager.Store().QueryEvents(ctx, store.EventFilter{
		TimelineID: id,
		EventType:  q.Get("type"),
		NodeID:     q.Get("node"),
		SessionID:  q.Get("session"),
		Limit:      queryInt(r, "limit", 100),
	})
	if err != nil {
		writeTimelineError(w, err)
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleDiagram renders the timeline with its live status overlay.
// ?format is mermaid (default), ascii, svg or png.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	format, err := diagram.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeTimelineError(w, err)
		return
	}
	tl, e, ok := s.load(w, r)
	if !ok {
		return
	}
	ctx := timelineContext(r)
	model := diagram.Build(tl.Name, e.ToJSON())
	data, err := diagram.Render(ctx, model, format)
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "diagram render failed", "format", string(format), "error", err)
		writeTimelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// load fetches the stored timeline and its live engine, writing the error
// response when either fails.
func (s *PanelServer) load(w http.ResponseWriter, r *http.Request) (*store.Timeline, *engine.Engine, bool) {
	ctx := timelineContext(r)
	id := r.PathValue("id")
	tl, err := s.deps.Manager.Store().GetTimeline(ctx, id)
	if err != nil {
		writeTimelineError(w, err)
		return nil, nil, false
	}
	e, err := s.deps.Manager.Get(ctx, id)
	if err != nil {
		writeTimelineError(w, err)
		return nil, nil, false
	}
	return tl, e, true
}
