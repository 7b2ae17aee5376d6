// Package metrics exposes timeline activity as Prometheus metrics. The
// Collector is an event sink: wire it into the manager's fan-out and serve
// Handler on /metrics.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/pkg/schema"
)

const namespace = "timeline"

// Collector turns engine events into metrics.
type Collector struct {
	registry *prometheus.Registry

	events           *prometheus.CounterVec
	actionsCompleted prometheus.Counter
	actionDuration   prometheus.Histogram
	decisions        prometheus.Counter
	sessions         prometheus.Counter
	sessionDuration  prometheus.Histogram
	active           prometheus.Gauge

	mu      sync.Mutex
	running map[string]struct{}
}

// Options controls which runtime collectors are registered.
type Options struct {
	// Runtime adds the Go and process collectors.
	Runtime bool
}

// New creates a Collector with its own registry.
func New(opts Options) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		running:  make(map[string]struct{}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engine events by type.",
		}, []string{"type"}),
		actionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_completed_total",
			Help:      "Actions that reached completed.",
		}),
		actionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Actual duration of completed actions.",
			Buckets:   []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}),
		decisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_resolved_total",
			Help:      "Decision points resolved by MakeDecision.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_sessions_total",
			Help:      "Manual-mode sessions ended.",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "manual_session_seconds",
			Help:      "Total actual time recorded per manual session.",
			Buckets:   prometheus.ExponentialBuckets(60, 2, 8),
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Timelines currently running or in manual mode.",
		}),
	}
	c.registry.MustRegister(c.events, c.actionsCompleted, c.actionDuration, c.decisions, c.sessions, c.sessionDuration, c.active)
	if opts.Runtime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// AppendEvent records one event. It never fails.
func (c *Collector) AppendEvent(_ context.Context, event *store.Event) error {
	c.events.WithLabelValues(event.Type).Inc()

	switch event.Type {
	case schema.EventActionCompleted:
		c.actionsCompleted.Inc()
		var p store.NodePayload
		if json.Unmarshal(event.Payload, &p) == nil && p.ActualDuration > 0 {
			c.actionDuration.Observe(float64(p.ActualDuration) / 1000)
		}
	case schema.EventDecisionResolved:
		c.decisions.Inc()
	case schema.EventTimelineStarted, schema.EventManualModeStarted, schema.EventTimelineResumed:
		c.setRunning(event.TimelineID, true)
	case schema.EventTimelineCompleted, schema.EventTimelineStopped, schema.EventTimelineReset,
		schema.EventTimelinePaused, schema.EventManualTimelineComplete:
		c.setRunning(event.TimelineID, false)
	case schema.EventManualModeEnded:
		c.setRunning(event.TimelineID, false)
		c.sessions.Inc()
		var stats struct {
			TotalActual int64 `json:"totalActualMs"`
		}
		if json.Unmarshal(event.Payload, &stats) == nil && stats.TotalActual > 0 {
			c.sessionDuration.Observe(float64(stats.TotalActual) / 1000)
		}
	}
	return nil
}

func (c *Collector) setRunning(timelineID string, running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if running {
		c.running[timelineID] = struct{}{}
	} else {
		delete(c.running, timelineID)
	}
	c.active.Set(float64(len(c.running)))
}
