package logging

import (
	"context"
	"log/slog"
)

// ids are the correlation values a context can carry. They travel as one
// value so setting one id keeps the others.
type ids struct {
	timeline string
	node     string
	session  string
}

type ctxKey struct{}

func idsFrom(ctx context.Context) ids {
	v, _ := ctx.Value(ctxKey{}).(ids)
	return v
}

func withIDs(ctx context.Context, fn func(*ids)) context.Context {
	v := idsFrom(ctx)
	fn(&v)
	return context.WithValue(ctx, ctxKey{}, v)
}

// WithTimelineID returns a context tagged with the timeline id.
func WithTimelineID(ctx context.Context, id string) context.Context {
	return withIDs(ctx, func(v *ids) { v.timeline = id })
}

// WithNodeID returns a context tagged with the node id.
func WithNodeID(ctx context.Context, id string) context.Context {
	return withIDs(ctx, func(v *ids) { v.node = id })
}

// WithSessionID returns a context tagged with the manual session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withIDs(ctx, func(v *ids) { v.session = id })
}

// WithIDs sets all three correlation ids at once. Empty values clear.
func WithIDs(ctx context.Context, timelineID, nodeID, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ids{timeline: timelineID, node: nodeID, session: sessionID})
}

func TimelineID(ctx context.Context) string { return idsFrom(ctx).timeline }

func NodeID(ctx context.Context) string { return idsFrom(ctx).node }

func SessionID(ctx context.Context) string { return idsFrom(ctx).session }

func (v ids) attrs() []slog.Attr {
	var attrs []slog.Attr
	if v.timeline != "" {
		attrs = append(attrs, slog.String("timeline_id", v.timeline))
	}
	if v.node != "" {
		attrs = append(attrs, slog.String("node_id", v.node))
	}
	if v.session != "" {
		attrs = append(attrs, slog.String("session_id", v.session))
	}
	return attrs
}

// CorrelationHandler adds the context's timeline, node and session ids to
// every record logged with a *Context method.
type CorrelationHandler struct {
	inner slog.Handler
}

func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(idsFrom(ctx).attrs()...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// Correlated returns l with a CorrelationHandler in front of its handler.
// Loggers built by New already have one and are returned unchanged.
func Correlated(l *slog.Logger) *slog.Logger {
	if l == nil {
		return nil
	}
	if _, ok := l.Handler().(*CorrelationHandler); ok {
		return l
	}
	return slog.New(NewCorrelationHandler(l.Handler()))
}
