package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vekjja/espwifi-broker/internal/model"
)

// Publisher is the subset of *nats.Conn used by NATS.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each event as JSON on "<prefix>.<event type>".
type NATS struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string
}

// DialNATS connects to url and returns a sink publishing under prefix.
func DialNATS(url, prefix string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("espwifi-broker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{pub: nc, conn: nc, prefix: prefix}, nil
}

// NewNATS wraps an existing publisher.
func NewNATS(pub Publisher, prefix string) *NATS {
	return &NATS{pub: pub, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func Subject(prefix string, t model.EventType) string {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return string(t)
	}
	return prefix + "." + string(t)
}

// Record implements Sink.
func (n *NATS) Record(_ context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats encode: %w", err)
	}
	if err := n.pub.Publish(Subject(n.prefix, ev.Type), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close drains the owned connection, if any.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
