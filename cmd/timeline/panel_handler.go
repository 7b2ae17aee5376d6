package main

import (
	"net/http"
	"sync/atomic"

	"github.com/rendis/timeline/internal/config"
)

// panelMux is one build of the panel routes and the setting it was built for.
type panelMux struct {
	handler http.Handler
	metrics bool
}

// panelHandler serves the panel routes built from the live config. A reload
// that toggles metrics rebuilds the routes in place; the listener and open
// SSE streams stay on the build they started with.
type panelHandler struct {
	build   func(config.Config) http.Handler
	current atomic.Pointer[panelMux]
}

func newPanelHandler(cfg config.Config, build func(config.Config) http.Handler) *panelHandler {
	p := &panelHandler{build: build}
	p.current.Store(&panelMux{handler: build(cfg), metrics: cfg.MetricsEnabled})
	return p
}

func (p *panelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := p.current.Load()
	if m == nil || m.handler == nil {
		http.Error(w, "panel is not ready", http.StatusServiceUnavailable)
		return
	}
	m.handler.ServeHTTP(w, r)
}

// Reload rebuilds the routes when cfg changes what the panel serves and
// reports whether it did.
func (p *panelHandler) Reload(cfg config.Config) bool {
	if m := p.current.Load(); m != nil && m.metrics == cfg.MetricsEnabled {
		return false
	}
	p.current.Store(&panelMux{handler: p.build(cfg), metrics: cfg.MetricsEnabled})
	return true
}

// MetricsEnabled reports whether the routes being served include /metrics.
func (p *panelHandler) MetricsEnabled() bool {
	m := p.current.Load()
	return m != nil && m.metrics
}
