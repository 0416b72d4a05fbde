package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher sends envelopes to "<prefix>.<EventName>".
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	now    func() time.Time
}

// ConnectNATS dials the server and returns a publisher.
func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("genxsop-forecast"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewNATSPublisher(nc, prefix), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: strings.TrimSuffix(prefix, "."), now: time.Now}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(e Event) string {
	if p.prefix == "" {
		return e.EventName()
	}
	return p.prefix + "." + e.EventName()
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := Encode(e, p.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.EventName(), err)
	}
	subject := p.Subject(e)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return p.nc.FlushWithContext(ctx)
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
