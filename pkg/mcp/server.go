// Package mcp exposes timelines to agents over the Model Context Protocol.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/expressions"
)

// TimelineServerDeps holds the dependencies for creating a TimelineServer.
type TimelineServerDeps struct {
	Manager *engine.Manager
	Logger  *slog.Logger
}

// TimelineServer wraps an MCP server with timeline tool handlers.
type TimelineServer struct {
	manager   *engine.Manager
	exprs     *expressions.Registry
	jq        *expressions.GoJQEngine
	sessions  *SessionRegistry
	notifier  *MCPNotifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewTimelineServer creates a TimelineServer with every tool registered.
// When a manager is given, clients that name a client_id receive the
// events of the timelines they touch as notifications.
func NewTimelineServer(deps TimelineServerDeps) *TimelineServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	exprs, err := expressions.NewRegistry()
	if err != nil {
		logger.Error("expression engines unavailable; timeline.query disabled", "error", err)
	}

	s := &TimelineServer{
		manager:  deps.Manager,
		exprs:    exprs,
		jq:       expressions.NewGoJQEngine(),
		sessions: NewSessionRegistry(),
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"timeline",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Timeline runs graphs of timed actions and decision points. Use timeline.list to find timelines, timeline.status to inspect one, timeline.control to start, pause, resume, stop, reset or step it, timeline.decide to resolve an active decision point, timeline.stats for planned versus actual durations, timeline.query to filter nodes with CEL, expr or jq, and timeline.diagram to draw it."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv

	s.notifier = NewMCPNotifier(mcpSrv, s.sessions, logger)
	if deps.Manager != nil {
		deps.Manager.AddSink(engine.Sink{Name: "mcp", Appender: s.notifier})
	}
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *TimelineServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *TimelineServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *TimelineServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: listTool(), Handler: s.handleList},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: controlTool(), Handler: s.handleControl},
		{Tool: decideTool(), Handler: s.handleDecide},
		{Tool: statsTool(), Handler: s.handleStats},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func clientIDOption() mcp.ToolOption {
	return mcp.WithString("client_id", mcp.Description("Caller ID; events of this timeline are pushed to the caller's session"))
}

func listTool() mcp.Tool {
	return mcp.NewTool("timeline.list",
		mcp.WithDescription("List stored timelines"),
		mcp.WithObject("filter", mcp.Description("Filter criteria (name, limit, offset)")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("timeline.status",
		mcp.WithDescription("Get the execution status of a timeline"),
		mcp.WithString("timeline_id", mcp.Required(), mcp.Description("ID of the timeline to query")),
		mcp.WithString("include_nodes", mcp.Description("Include every node with its live status (default: false)")),
		clientIDOption(),
	)
}

func controlTool() mcp.Tool {
	return mcp.NewTool("timeline.control",
		mcp.WithDescription("Start, pause, resume, stop, reset or step a timeline"),
		mcp.WithString("timeline_id", mcp.Required(), mcp.Description("ID of the target timeline")),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum(engine.ControlActions...),
			mcp.Description("Control action to apply"),
		),
		mcp.WithString("node_id", mcp.Description("Start node for start and manual (default: the entry node)")),
		clientIDOption(),
	)
}

func decideTool() mcp.Tool {
	return mcp.NewTool("timeline.decide",
		mcp.WithDescription("Resolve an active decision point by choosing one of its options"),
		mcp.WithString("timeline_id", mcp.Required(), mcp.Description("ID of the target timeline")),
		mcp.WithString("decision_id", mcp.Required(), mcp.Description("ID of the active decision point")),
		mcp.WithString("action_id", mcp.Required(), mcp.Description("Action ID of the chosen option")),
		clientIDOption(),
	)
}

func statsTool() mcp.Tool {
	return mcp.NewTool("timeline.stats",
		mcp.WithDescription("Compare planned and actual action durations"),
		mcp.WithString("timeline_id", mcp.Required(), mcp.Description("ID of the timeline")),
		mcp.WithString("session_id", mcp.Description("Restrict statistics to one manual session")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("timeline.query",
		mcp.WithDescription("Filter a timeline's nodes with a CEL or expr predicate, or run a jq program over its snapshot"),
		mcp.WithString("timeline_id", mcp.Required(), mcp.Description("ID of the timeline")),
		mcp.WithString("expression", mcp.Required(), mcp.Description("Predicate over node and timeline, or a jq program")),
		mcp.WithString("engine",
			mcp.Enum("cel", "expr", "jq"),
			mcp.Description("Expression language (default: cel)"),
		),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("timeline.diagram",
		mcp.WithDescription("Draw a timeline with its live status. Returns ASCII art, Mermaid flowchart syntax, or a base64-encoded PNG image"),
		mcp.WithString("timeline_id", mcp.Required(), mcp.Description("ID of the timeline")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (base64 PNG)"),
		),
	)
}
