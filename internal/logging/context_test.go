package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	// Initially empty.
	assert.Equal(t, "", TimelineID(ctx))
	assert.Equal(t, "", NodeID(ctx))
	assert.Equal(t, "", SessionID(ctx))

	// Set values.
	ctx = WithTimelineID(ctx, "tl-123")
	ctx = WithNodeID(ctx, "node-1")
	ctx = WithSessionID(ctx, "sess-42")

	// Round-trip.
	assert.Equal(t, "tl-123", TimelineID(ctx))
	assert.Equal(t, "node-1", NodeID(ctx))
	assert.Equal(t, "sess-42", SessionID(ctx))
}

func TestContextKeys_Independent(t *testing.T) {
	ctx := WithTimelineID(context.Background(), "tl-1")
	ctx = WithNodeID(ctx, "node-1")
	child := WithNodeID(ctx, "node-2")

	assert.Equal(t, "tl-1", TimelineID(child))
	assert.Equal(t, "node-2", NodeID(child))
	assert.Equal(t, "node-1", NodeID(ctx))
}

func TestCorrelated(t *testing.T) {
	var buf bytes.Buffer
	plain := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger := Correlated(plain)
	logger.InfoContext(WithTimelineID(context.Background(), "tl-abc"), "wrapped")
	assert.Contains(t, buf.String(), "timeline_id=tl-abc")

	assert.Same(t, logger, Correlated(logger))
	assert.Nil(t, Correlated(nil))
}

func TestWithIDs(t *testing.T) {
	ctx := WithIDs(context.Background(), "tl-1", "node-2", "sess-3")
	assert.Equal(t, "tl-1", TimelineID(ctx))
	assert.Equal(t, "node-2", NodeID(ctx))
	assert.Equal(t, "sess-3", SessionID(ctx))
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithIDs(context.Background(), "tl-auto", "node-auto", "sess-auto")
	logger.InfoContext(ctx, "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"timeline_id":"tl-auto"`)
	assert.Contains(t, output, `"node_id":"node-auto"`)
	assert.Contains(t, output, `"session_id":"sess-auto"`)
	assert.Contains(t, output, "auto inject")
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	logger.InfoContext(context.Background(), "bare log")

	output := buf.String()
	assert.NotContains(t, output, "timeline_id")
	assert.NotContains(t, output, "node_id")
	assert.NotContains(t, output, "session_id")
	assert.Contains(t, output, "bare log")
}

func TestCorrelationHandlerPartialContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithTimelineID(context.Background(), "tl-only")
	logger.InfoContext(ctx, "partial")

	output := buf.String()
	assert.Contains(t, output, `"timeline_id":"tl-only"`)
	assert.NotContains(t, output, "node_id")
	assert.NotContains(t, output, "session_id")
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewCorrelationHandler(inner)
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "engine")}))

	ctx := WithTimelineID(context.Background(), "tl-attr")
	logger.InfoContext(ctx, "with attrs")

	output := buf.String()
	assert.Contains(t, output, `"timeline_id":"tl-attr"`)
	assert.Contains(t, output, `"component":"engine"`)
}

func TestCorrelationHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewCorrelationHandler(inner)
	logger := slog.New(handler.WithGroup("engine"))

	ctx := WithTimelineID(context.Background(), "tl-grp")
	logger.InfoContext(ctx, "grouped", "key", "val")

	output := buf.String()
	assert.Contains(t, output, "tl-grp")
	assert.Contains(t, output, "grouped")
}
