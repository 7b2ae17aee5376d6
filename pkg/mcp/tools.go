package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/goccy/go-graphviz"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/timeline/internal/diagram"
	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/expressions"
	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/internal/store"
)

// timelineInfo is a stored timeline without its snapshot.
type timelineInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Loaded      bool   `json:"loaded"`
}

// handleList lists stored timelines.
func (s *TimelineServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.manager == nil {
		return mcp.NewToolResultError("no timeline manager configured"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", nil)
	tf := store.TimelineFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if name, ok := filter["name"].(string); ok {
		tf.Name = name
	}

	timelines, err := s.manager.Store().ListTimelines(ctx, tf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	loaded := s.manager.Loaded()
	out := make([]timelineInfo, 0, len(timelines))
	for _, tl := range timelines {
		out = append(out, timelineInfo{
			ID:          tl.ID,
			Name:        tl.Name,
			Description: tl.Description,
			Loaded:      slices.Contains(loaded, tl.ID),
		})
	}
	return marshalResult(map[string]any{"timelines": out})
}

// handleStatus returns the live status of a timeline.
func (s *TimelineServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timelineID, err := req.RequireString("timeline_id")
	if err != nil {
		return mcp.NewToolResultError("timeline_id is required"), nil
	}
	e, errResult := s.engineFor(ctx, timelineID)
	if errResult != nil {
		return errResult, nil
	}
	s.captureSession(ctx, req.GetString("client_id", ""), timelineID)

	out := map[string]any{"status": e.Status()}
	if req.GetString("include_nodes", "false") == "true" {
		out["nodes"] = nodeMaps(e.GetAllNodes())
	}
	return marshalResult(out)
}

// handleControl applies a control action and returns the resulting status.
func (s *TimelineServer) handleControl(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timelineID, err := req.RequireString("timeline_id")
	if err != nil {
		return mcp.NewToolResultError("timeline_id is required"), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	if s.manager == nil {
		return mcp.NewToolResultError("no timeline manager configured"), nil
	}
	s.captureSession(ctx, req.GetString("client_id", ""), timelineID)

	st, ctlErr := s.manager.Control(ctx, timelineID, action, req.GetString("node_id", ""))
	if ctlErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, ctlErr)), nil
	}
	return marshalResult(st)
}

// handleDecide resolves an active decision point.
func (s *TimelineServer) handleDecide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timelineID, err := req.RequireString("timeline_id")
	if err != nil {
		return mcp.NewToolResultError("timeline_id is required"), nil
	}
	decisionID, err := req.RequireString("decision_id")
	if err != nil {
		return mcp.NewToolResultError("decision_id is required"), nil
	}
	actionID, err := req.RequireString("action_id")
	if err != nil {
		return mcp.NewToolResultError("action_id is required"), nil
	}
	e, errResult := s.engineFor(ctx, timelineID)
	if errResult != nil {
		return errResult, nil
	}
	s.captureSession(ctx, req.GetString("client_id", ""), timelineID)

	if decErr := e.MakeDecision(decisionID, actionID); decErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("decision failed: %v", decErr)), nil
	}
	return marshalResult(e.Status())
}

// handleStats returns session statistics and recorded sessions.
func (s *TimelineServer) handleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timelineID, err := req.RequireString("timeline_id")
	if err != nil {
		return mcp.NewToolResultError("timeline_id is required"), nil
	}
	e, errResult := s.engineFor(ctx, timelineID)
	if errResult != nil {
		return errResult, nil
	}

	stats := e.GetSessionStats()
	if sessionID := req.GetString("session_id", ""); sessionID != "" {
		stats = e.SessionBreakdown(sessionID)
	}
	sessions, listErr := s.manager.Store().ListSessions(ctx, store.SessionFilter{TimelineID: timelineID, Limit: 20})
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", listErr)), nil
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	return marshalResult(map[string]any{"stats": stats, "sessions": sessions})
}

// handleQuery filters nodes with a CEL or expr predicate, or runs a jq
// program over the snapshot.
func (s *TimelineServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timelineID, err := req.RequireString("timeline_id")
	if err != nil {
		return mcp.NewToolResultError("timeline_id is required"), nil
	}
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}
	engineName := req.GetString("engine", "cel")

	e, errResult := s.engineFor(ctx, timelineID)
	if errResult != nil {
		return errResult, nil
	}

	if engineName == "jq" {
		out, qErr := expressions.Query(ctx, s.jq, expression, e.ToJSON())
		if qErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", qErr)), nil
		}
		return marshalResult(map[string]any{"result": out})
	}

	if s.exprs == nil {
		return mcp.NewToolResultError("expression engines are unavailable"), nil
	}
	eng, engErr := s.exprs.Get(engineName)
	if engErr != nil {
		return mcp.NewToolResultError(engErr.Error()), nil
	}
	timeline, dataErr := expressions.ToData(e.Status())
	if dataErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", dataErr)), nil
	}
	nodes, fErr := expressions.Filter(ctx, eng, expression, e.GetAllNodes(), timeline)
	if fErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", fErr)), nil
	}
	return marshalResult(map[string]any{"nodes": nodeMaps(nodes)})
}

// handleDiagram draws a timeline with its live status overlay.
func (s *TimelineServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timelineID, err := req.RequireString("timeline_id")
	if err != nil {
		return mcp.NewToolResultError("timeline_id is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	e, errResult := s.engineFor(ctx, timelineID)
	if errResult != nil {
		return errResult, nil
	}
	title := timelineID
	if tl, getErr := s.manager.Store().GetTimeline(ctx, timelineID); getErr == nil {
		title = tl.Name
	}
	model := diagram.Build(title, e.ToJSON())

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model, graphviz.PNG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// --- Internal helpers ---

// engineFor returns the live engine or a tool error result.
func (s *TimelineServer) engineFor(ctx context.Context, timelineID string) (*engine.Engine, *mcp.CallToolResult) {
	if s.manager == nil {
		return nil, mcp.NewToolResultError("no timeline manager configured")
	}
	e, err := s.manager.Get(ctx, timelineID)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("timeline lookup failed: %v", err))
	}
	return e, nil
}

func nodeMaps(nodes []graph.Node) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Map())
	}
	return out
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// captureSession maps the client to its current MCP session and subscribes
// it to the timeline's events.
func (s *TimelineServer) captureSession(ctx context.Context, clientID, timelineID string) {
	if clientID == "" {
		return
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(clientID, session.SessionID())
	}
	s.sessions.Watch(clientID, timelineID)
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
