package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/secrets"
)

// DefaultSubject prefixes the subjects batches are published on.
const DefaultSubject = "contextkeeper.messages"

// NATS publishes each batch as one JSON message on <subject>.<source>.
type NATS struct {
	nc      *nats.Conn
	owned   bool
	subject string
	scrub   secrets.Scrubber
	logger  *zap.Logger
}

// DialNATS connects to url and returns a relay that owns the connection.
func DialNATS(ctx context.Context, url, subject string, scrub secrets.Scrubber, logger *zap.Logger) (*NATS, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nc, err := nats.Connect(url,
		nats.Name("contextkeeper-relay"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	n := NewNATS(nc, subject, scrub, logger)
	n.owned = true
	return n, nil
}

// NewNATS returns a relay publishing on an existing connection. Close does
// not close a borrowed connection.
func NewNATS(nc *nats.Conn, subject string, scrub secrets.Scrubber, logger *zap.Logger) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	if scrub == nil {
		scrub = secrets.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{nc: nc, subject: subject, scrub: scrub, logger: logger}
}

// Subject returns the subject a batch from source is published on.
func (n *NATS) Subject(source string) string {
	return n.subject + "." + subjectToken(source)
}

// Send implements collector.Relay.
func (n *NATS) Send(ctx context.Context, batch collector.Batch) error {
	if len(batch.Messages) == 0 {
		return nil
	}
	out := batch
	out.Messages = scrubMessages(n.scrub, batch.Messages, n.logger)

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}
	subject := n.Subject(batch.Source)
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing %s: %w", subject, err)
	}
	n.logger.Debug("published batch",
		zap.String("subject", subject),
		zap.Int("messages", len(out.Messages)),
	)
	return nil
}

// Close drains the connection when the relay owns it.
func (n *NATS) Close() error {
	if !n.owned {
		return nil
	}
	return n.nc.Drain()
}

// subjectToken maps a source host onto a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
