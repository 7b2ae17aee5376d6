package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/timeline/internal/store"
)

// ClientNotifier pushes notifications to connected clients.
type ClientNotifier interface {
	Notify(ctx context.Context, clientID string, payload map[string]any) error
}

// MCPNotifier implements ClientNotifier using MCP session push. As an event
// sink it forwards timeline events to the clients watching that timeline.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
	logger    *slog.Logger
}

// NewMCPNotifier creates a notifier that pushes via MCP sessions.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry, logger *slog.Logger) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions, logger: logger}
}

// Notify sends a notification to the client's session.
// Best-effort: returns nil if the client is not connected.
func (n *MCPNotifier) Notify(_ context.Context, clientID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(clientID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// AppendEvent implements the engine event sink.
func (n *MCPNotifier) AppendEvent(ctx context.Context, event *store.Event) error {
	watchers := n.sessions.Watchers(event.TimelineID)
	if len(watchers) == 0 {
		return nil
	}
	payload := map[string]any{
		"level":  "info",
		"logger": "timeline",
		"data": map[string]any{
			"timeline_id": event.TimelineID,
			"event_type":  event.Type,
			"node_id":     event.NodeID,
			"session_id":  event.SessionID,
			"sequence":    event.Sequence,
		},
	}
	var errs []error
	for _, clientID := range watchers {
		if err := n.Notify(ctx, clientID, payload); err != nil {
			n.logger.Debug("mcp notification failed", "client_id", clientID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
