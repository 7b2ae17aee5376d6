package panel

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rendis/timeline/internal/streaming"
)

const sseKeepAlive = 15 * time.Second

// handleSSETimeline streams one timeline's events. ?types=a,b narrows the
// stream. A reconnecting client sending Last-Event-ID first receives the
// stored events it missed.
func (s *PanelServer) handleSSETimeline(w http.ResponseWriter, r *http.Request) {
	filter := streaming.EventFilter{TimelineID: r.PathValue("id")}
	if types := r.URL.Query().Get("types"); types != "" {
		filter.EventTypes = strings.Split(types, ",")
	}
	var since int64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Last-Event-ID must be an event sequence number")
			return
		}
		since = n
	}

	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event streaming is disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before replaying so nothing falls between the two.
	ctx := timelineContext(r)
	ch, cancel, err := s.deps.Hub.Subscribe(ctx, filter)
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	last := since
	if since > 0 && s.deps.Manager != nil {
		missed, err := s.deps.Manager.Store().GetEvents(ctx, filter.TimelineID, since)
		if err != nil {
			s.deps.Logger.WarnContext(ctx, "SSE replay failed", "since", since, "error", err)
		}
		for _, e := range missed {
			ev := streaming.FromStoreEvent(e)
			if len(filter.EventTypes) > 0 && !slices.Contains(filter.EventTypes, ev.EventType) {
				continue
			}
			if writeSSE(w, ev) != nil {
				return
			}
			last = max(last, ev.Sequence)
		}
	}
	flusher.Flush()

	ping := time.NewTicker(sseKeepAlive)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Sequence > 0 && ev.Sequence <= last {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

// writeSSE writes one frame. Events with a sequence carry it as the id so
// clients can resume.
func writeSSE(w io.Writer, ev streaming.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	if ev.Sequence > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", ev.Sequence); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EventType, data)
	return err
}
