package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/pkg/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer returns a server over a fresh SQLite store holding one
// timeline: A -> D, where decision D offers B or C.
func newTestServer(t *testing.T) (*TimelineServer, *engine.Manager, string) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "timeline.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	m := engine.NewManager(st,
		engine.WithManagerLogger(discardLogger()),
		engine.WithAutoSaveDelay(time.Hour),
		engine.WithEngineOptions(engine.WithTickInterval(time.Hour)),
	)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	a, err := graph.NewAction(graph.ActionSpec{ID: "A", Name: "Wake", Duration: 60000, Connections: []string{"D"}})
	require.NoError(t, err)
	b, err := graph.NewAction(graph.ActionSpec{ID: "B", Name: "Run", Duration: 1800000})
	require.NoError(t, err)
	c, err := graph.NewAction(graph.ActionSpec{ID: "C", Name: "Read", Duration: 900000})
	require.NoError(t, err)
	d, err := graph.NewDecisionPoint(graph.DecisionSpec{ID: "D", Name: "Weather?", Options: []graph.DecisionOption{
		{ActionID: "B", Label: "sunny"},
		{ActionID: "C", Label: "rainy"},
	}})
	require.NoError(t, err)

	tl, err := m.Create(context.Background(), "morning", "daily", &engine.Snapshot{
		Actions:          []*graph.Action{a, b, c},
		DecisionPoints:   []*graph.DecisionPoint{d},
		Notes:            []*graph.Note{},
		ExecutionHistory: []string{},
	})
	require.NoError(t, err)

	s := NewTimelineServer(TimelineServerDeps{Manager: m, Logger: discardLogger()})
	return s, m, tl.ID
}

// --- Helper ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target), text)
}

// --- Tests ---

func TestListTool(t *testing.T) {
	s, m, id := newTestServer(t)
	ctx := context.Background()
	_, err := m.Create(ctx, "evening", "", nil)
	require.NoError(t, err)

	result, err := s.handleList(ctx, buildRequest("timeline.list", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	var out struct {
		Timelines []timelineInfo `json:"timelines"`
	}
	unmarshalResult(t, result, &out)
	assert.Len(t, out.Timelines, 2)

	_, err = m.Get(ctx, id)
	require.NoError(t, err)
	result, err = s.handleList(ctx, buildRequest("timeline.list", map[string]any{
		"filter": map[string]any{"name": "morning"},
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	require.Len(t, out.Timelines, 1)
	assert.Equal(t, id, out.Timelines[0].ID)
	assert.True(t, out.Timelines[0].Loaded)
}

func TestToolsWithoutManager(t *testing.T) {
	s := NewTimelineServer(TimelineServerDeps{Logger: discardLogger()})
	result, err := s.handleList(context.Background(), buildRequest("timeline.list", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleStatus(context.Background(), buildRequest("timeline.status", map[string]any{"timeline_id": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStatusTool(t *testing.T) {
	s, _, id := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleStatus(ctx, buildRequest("timeline.status", map[string]any{
		"timeline_id":   id,
		"include_nodes": "true",
		"client_id":     "client-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	var out struct {
		Status engine.Status    `json:"status"`
		Nodes  []map[string]any `json:"nodes"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.EngineStateIdle, out.Status.State)
	assert.Len(t, out.Nodes, 4)
	assert.Equal(t, []string{"client-1"}, s.sessions.Watchers(id))

	result, err = s.handleStatus(ctx, buildRequest("timeline.status", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleStatus(ctx, buildRequest("timeline.status", map[string]any{"timeline_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestControlAndDecideTools(t *testing.T) {
	s, _, id := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleControl(ctx, buildRequest("timeline.control", map[string]any{
		"timeline_id": id,
		"action":      "start",
		"node_id":     "D",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var st engine.Status
	unmarshalResult(t, result, &st)
	assert.Equal(t, schema.EngineStateExecutingDecision, st.State)

	result, err = s.handleDecide(ctx, buildRequest("timeline.decide", map[string]any{
		"timeline_id": id,
		"decision_id": "D",
		"action_id":   "A",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "A is not an option of D")

	result, err = s.handleDecide(ctx, buildRequest("timeline.decide", map[string]any{
		"timeline_id": id,
		"decision_id": "D",
		"action_id":   "C",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	unmarshalResult(t, result, &st)
	assert.Equal(t, "C", st.CurrentNodeID)

	result, err = s.handleControl(ctx, buildRequest("timeline.control", map[string]any{
		"timeline_id": id,
		"action":      "stop",
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &st)
	assert.Equal(t, schema.EngineStateIdle, st.State)

	result, err = s.handleControl(ctx, buildRequest("timeline.control", map[string]any{
		"timeline_id": id,
		"action":      "launch",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleDecide(ctx, buildRequest("timeline.decide", map[string]any{"timeline_id": id}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStatsTool(t *testing.T) {
	s, _, id := newTestServer(t)
	ctx := context.Background()

	for _, action := range []string{"manual", "end-manual"} {
		result, err := s.handleControl(ctx, buildRequest("timeline.control", map[string]any{
			"timeline_id": id,
			"action":      action,
		}))
		require.NoError(t, err)
		require.False(t, result.IsError, extractText(t, result))
	}

	result, err := s.handleStats(ctx, buildRequest("timeline.stats", map[string]any{"timeline_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var out struct {
		Stats    engine.SessionStats `json:"stats"`
		Sessions []store.Session     `json:"sessions"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Sessions, 1)
	assert.Equal(t, id, out.Sessions[0].TimelineID)

	result, err = s.handleStats(ctx, buildRequest("timeline.stats", map[string]any{
		"timeline_id": id,
		"session_id":  out.Sessions[0].ID,
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	assert.Equal(t, out.Sessions[0].ID, out.Stats.SessionID)
}

func TestQueryTool(t *testing.T) {
	s, _, id := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		engine     string
		expression string
		want       []string
	}{
		{"cel", "cel", `node.kind == "action" && node.duration > 60000.0`, []string{"B", "C"}},
		{"expr", "expr", `node.kind == "decision"`, []string{"D"}},
		{"default engine", "", `node.id == "A"`, []string{"A"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := map[string]any{"timeline_id": id, "expression": tc.expression}
			if tc.engine != "" {
				args["engine"] = tc.engine
			}
			result, err := s.handleQuery(ctx, buildRequest("timeline.query", args))
			require.NoError(t, err)
			require.False(t, result.IsError, extractText(t, result))
			var out struct {
				Nodes []map[string]any `json:"nodes"`
			}
			unmarshalResult(t, result, &out)
			var ids []string
			for _, n := range out.Nodes {
				ids = append(ids, n["id"].(string))
			}
			assert.Equal(t, tc.want, ids)
		})
	}

	result, err := s.handleQuery(ctx, buildRequest("timeline.query", map[string]any{
		"timeline_id": id,
		"engine":      "jq",
		"expression":  "[.actions[].name]",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var out struct {
		Result []string `json:"result"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, []string{"Wake", "Run", "Read"}, out.Result)

	result, err = s.handleQuery(ctx, buildRequest("timeline.query", map[string]any{
		"timeline_id": id,
		"engine":      "lua",
		"expression":  "true",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleQuery(ctx, buildRequest("timeline.query", map[string]any{
		"timeline_id": id,
		"expression":  `node.name`,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "non-boolean predicate")
}

func TestDiagramTool(t *testing.T) {
	s, _, id := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleDiagram(ctx, buildRequest("timeline.diagram", map[string]any{
		"timeline_id": id,
		"format":      "mermaid",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "graph TD")

	result, err = s.handleDiagram(ctx, buildRequest("timeline.diagram", map[string]any{
		"timeline_id": id,
		"format":      "ascii",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(t, result), "Weather?")

	result, err = s.handleDiagram(ctx, buildRequest("timeline.diagram", map[string]any{
		"timeline_id": id,
		"format":      "image",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	png, err := base64.StdEncoding.DecodeString(extractText(t, result))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	result, err = s.handleDiagram(ctx, buildRequest("timeline.diagram", map[string]any{
		"timeline_id": id,
		"format":      "gif",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExtractInt(t *testing.T) {
	filter := map[string]any{"a": float64(3), "b": 4, "c": "5", "d": "x"}
	assert.Equal(t, 3, extractInt(filter, "a", 0))
	assert.Equal(t, 4, extractInt(filter, "b", 0))
	assert.Equal(t, 5, extractInt(filter, "c", 0))
	assert.Equal(t, 9, extractInt(filter, "d", 9))
	assert.Equal(t, 9, extractInt(nil, "a", 9))
}
