package streaming

import (
	"context"

	"github.com/rendis/timeline/internal/store"
)

// HubAppender publishes engine events to an EventHub. It satisfies the
// engine's EventAppender so it can be attached as an event sink.
type HubAppender struct {
	hub EventHub
}

// NewHubAppender wraps hub.
func NewHubAppender(hub EventHub) *HubAppender {
	return &HubAppender{hub: hub}
}

// AppendEvent publishes event.
func (a *HubAppender) AppendEvent(ctx context.Context, event *store.Event) error {
	return a.hub.Publish(ctx, FromStoreEvent(event))
}
