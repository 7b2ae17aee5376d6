// Package panel serves the HTTP API for managing and driving timelines,
// with live updates over Server-Sent Events.
package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/exchange"
	"github.com/rendis/timeline/internal/logging"
	"github.com/rendis/timeline/internal/streaming"
	"github.com/rendis/timeline/internal/validation"
)

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Manager  *engine.Manager
	Importer *exchange.Importer
	Hub      streaming.EventHub
	Metrics  http.Handler // optional; serves GET /metrics
	Logger   *slog.Logger
}

// PanelServer serves the timeline HTTP API.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a new PanelServer. Without an Importer one is
// built on the default timeline validator.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	deps.Logger = logging.Correlated(deps.Logger)
	if deps.Importer == nil {
		v, err := validation.NewTimelineValidator()
		if err != nil {
			deps.Logger.Error("timeline validator unavailable; imports disabled", "error", err)
		} else {
			deps.Importer = exchange.NewImporter(v, deps.Logger)
		}
	}
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Queries.
	mux.HandleFunc("GET /api/timelines", s.handleListTimelines)
	mux.HandleFunc("GET /api/timelines/{id}", s.handleGetTimeline)
	mux.HandleFunc("GET /api/timelines/{id}/stats", s.handleStats)
	mux.HandleFunc("GET /api/timelines/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/timelines/{id}/diagram", s.handleDiagram)

	// Mutations.
	mux.HandleFunc("POST /api/timelines", s.handleCreateTimeline)
	mux.HandleFunc("DELETE /api/timelines/{id}", s.handleDeleteTimeline)
	mux.HandleFunc("POST /api/timelines/{id}/{action}", s.handleControl)
	mux.HandleFunc("POST /api/timelines/{id}/decisions/{decision}", s.handleDecision)

	// SSE.
	mux.HandleFunc("GET /sse/timelines/{id}", s.handleSSETimeline)

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}
	return logRequests(s.deps.Logger, mux)
}

// logRequests logs every request at debug level.
func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.DebugContext(r.Context(), "http request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
