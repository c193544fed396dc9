package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject prefix events are published under.
const DefaultSubject = "sampleforge.events"

// NATSSink publishes each event as JSON on "<subject>.<type>".
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to url.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("sampleforge"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSSinkFromConn(nc, subject), nil
}

// NewNATSSinkFromConn wraps an existing connection.
func NewNATSSinkFromConn(nc *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{conn: nc, subject: subject}
}

func (s *NATSSink) Emit(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.conn.Publish(Subject(s.subject, e.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}

// Subject returns the subject an event type is published on.
func Subject(prefix string, t Type) string {
	return prefix + "." + string(t)
}
