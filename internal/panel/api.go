package panel

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/exchange"
	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/pkg/schema"
)

// timelineSummary is a stored timeline without its snapshot.
type timelineSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func summarize(tl *store.Timeline) timelineSummary {
	return timelineSummary{
		ID:          tl.ID,
		Name:        tl.Name,
		Description: tl.Description,
		CreatedAt:   tl.CreatedAt,
		UpdatedAt:   tl.UpdatedAt,
	}
}

// handleCreateTimeline stores a timeline. The body is an exchange document:
// {"name", "description", "timeline"}. Without "timeline" an empty graph is
// created.
func (s *PanelServer) handleCreateTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := readBody(w, r)
	if err != nil {
		writeTimelineError(w, err)
		return
	}
	var body struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Timeline    json.RawMessage `json:"timeline"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var snap *engine.Snapshot
	if len(body.Timeline) > 0 && string(body.Timeline) != "null" {
		if s.deps.Importer == nil {
			writeError(w, http.StatusServiceUnavailable, "timeline import is unavailable")
			return
		}
		doc, err := s.deps.Importer.Decode(data, exchange.FormatJSON)
		if err != nil {
			writeTimelineError(w, err)
			return
		}
		snap = &doc.Timeline
	}

	tl, err := s.deps.Manager.Create(ctx, body.Name, body.Description, snap)
	if err != nil {
		writeTimelineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summarize(tl))
}

// handleDeleteTimeline unloads and deletes a timeline with its history.
func (s *PanelServer) handleDeleteTimeline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Manager.Delete(timelineContext(r), id); err != nil {
		writeTimelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "id": id})
}

// controlRequest is the optional body of a control action.
type controlRequest struct {
	NodeID string `json:"nodeId"`
}

// handleControl drives the engine: start, manual, pause, resume, stop,
// reset, next and end-manual. The response is the engine status.
func (s *PanelServer) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeTimelineError(w, err)
		return
	}
	st, err := s.deps.Manager.Control(timelineContext(r), r.PathValue("id"), r.PathValue("action"), req.NodeID)
	if err != nil {
		writeTimelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleDecision resolves an active decision point with {"actionId"}.
func (s *PanelServer) handleDecision(w http.ResponseWriter, r *http.Request) {
	ctx := timelineContext(r)
	id := r.PathValue("id")
	decisionID := r.PathValue("decision")

	var body struct {
		ActionID string `json:"actionId"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeTimelineError(w, err)
		return
	}
	if body.ActionID == "" {
		writeTimelineError(w, schema.NewError(schema.ErrCodeValidation, "actionId is required").WithNode(decisionID))
		return
	}

	e, err := s.deps.Manager.Get(ctx, id)
	if err != nil {
		writeTimelineError(w, err)
		return
	}
	if err := e.MakeDecision(decisionID, body.ActionID); err != nil {
		writeTimelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.Status())
}
