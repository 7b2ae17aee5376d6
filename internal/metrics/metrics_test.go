package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/pkg/schema"
)

func event(t *testing.T, timelineID, typ string, payload any) *store.Event {
	t.Helper()
	ev := &store.Event{TimelineID: timelineID, Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		ev.Payload = raw
	}
	return ev
}

func TestCollector_CountsEvents(t *testing.T) {
	c := New(Options{})
	ctx := context.Background()

	for _, ev := range []*store.Event{
		event(t, "tl-1", schema.EventTimelineStarted, nil),
		event(t, "tl-1", schema.EventActionStarted, nil),
		event(t, "tl-1", schema.EventActionCompleted, store.NodePayload{Name: "Warm up", ActualDuration: 90000}),
		event(t, "tl-1", schema.EventDecisionActivated, nil),
		event(t, "tl-1", schema.EventDecisionResolved, store.NodePayload{SelectedOption: "run"}),
		event(t, "tl-1", schema.EventActionCompleted, store.NodePayload{ActualDuration: 30000}),
	} {
		require.NoError(t, c.AppendEvent(ctx, ev))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues(schema.EventActionCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues(schema.EventTimelineStarted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.actionsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions))
	assert.Equal(t, 1, testutil.CollectAndCount(c.actionDuration))

	expected := `
# HELP timeline_action_duration_seconds Actual duration of completed actions.
# TYPE timeline_action_duration_seconds histogram
timeline_action_duration_seconds_bucket{le="10"} 0
timeline_action_duration_seconds_bucket{le="30"} 1
timeline_action_duration_seconds_bucket{le="60"} 1
timeline_action_duration_seconds_bucket{le="300"} 2
timeline_action_duration_seconds_bucket{le="600"} 2
timeline_action_duration_seconds_bucket{le="1800"} 2
timeline_action_duration_seconds_bucket{le="3600"} 2
timeline_action_duration_seconds_bucket{le="7200"} 2
timeline_action_duration_seconds_bucket{le="+Inf"} 2
timeline_action_duration_seconds_sum 120
timeline_action_duration_seconds_count 2
`
	require.NoError(t, testutil.CollectAndCompare(c.actionDuration, strings.NewReader(expected)))
}

func TestCollector_ActiveRuns(t *testing.T) {
	c := New(Options{})
	ctx := context.Background()
	send := func(id, typ string) { require.NoError(t, c.AppendEvent(ctx, event(t, id, typ, nil))) }

	send("a", schema.EventTimelineStarted)
	send("b", schema.EventManualModeStarted)
	send("a", schema.EventTimelineStarted)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.active))

	send("a", schema.EventTimelinePaused)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.active))
	send("a", schema.EventTimelineResumed)
	send("a", schema.EventTimelineCompleted)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.active))

	require.NoError(t, c.AppendEvent(ctx, event(t, "b", schema.EventManualModeEnded, map[string]any{"totalActualMs": 180000})))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessions))
	assert.Equal(t, 1, testutil.CollectAndCount(c.sessionDuration))

	send("ghost", schema.EventTimelineStopped)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.active))
}

func TestCollector_Handler(t *testing.T) {
	c := New(Options{Runtime: true})
	require.NoError(t, c.AppendEvent(context.Background(), event(t, "tl", schema.EventTimelineStarted, nil)))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `timeline_events_total{type="timeline_started"} 1`)
	assert.Contains(t, body, "timeline_runs_active 1")
	assert.Contains(t, body, "go_goroutines")
}
