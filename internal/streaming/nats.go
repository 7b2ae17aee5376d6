package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rendis/timeline/internal/store"
)

// DefaultSubjectPrefix is the subject root for published timeline events.
const DefaultSubjectPrefix = "timeline.events"

// Publisher is the subset of *nats.Conn used for publishing.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards engine events to NATS on
// "{prefix}.{timeline_id}.{event_type}".
type NATSPublisher struct {
	pub    Publisher
	prefix string
}

// NewNATSPublisher creates a publisher over pub. An empty prefix uses
// DefaultSubjectPrefix.
func NewNATSPublisher(pub Publisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{pub: pub, prefix: strings.TrimSuffix(prefix, ".")}
}

// ConnectNATS dials url with reconnect settings suited to a long-running server.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(event *store.Event) string {
	return p.prefix + "." + subjectToken(event.TimelineID) + "." + subjectToken(event.Type)
}

// AppendEvent publishes event as JSON.
func (p *NATSPublisher) AppendEvent(ctx context.Context, event *store.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(FromStoreEvent(event))
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	if err := p.pub.Publish(p.Subject(event), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// subjectToken replaces characters NATS treats as separators or wildcards.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, s)
}
