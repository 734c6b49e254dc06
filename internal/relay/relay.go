// Package relay delivers extracted message batches downstream.
//
// HTTP posts each message to a context API, NATS publishes whole batches
// to a subject, Fanout combines several relays and Discard drops
// everything.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/config"
	"github.com/fyrsmithlabs/contextkeeper/internal/secrets"
)

// Discard drops every batch.
type Discard struct{}

// Send implements collector.Relay.
func (Discard) Send(context.Context, collector.Batch) error { return nil }

// Fanout sends each batch to every relay, continuing past failures.
type Fanout []collector.Relay

// Send implements collector.Relay.
func (f Fanout) Send(ctx context.Context, batch collector.Batch) error {
	var errs []error
	for _, r := range f {
		if err := r.Send(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closer releases relay resources.
type Closer func() error

// FromConfig builds the relays named in cfg.Sinks. The returned Closer
// releases connections opened for them.
func FromConfig(ctx context.Context, cfg config.RelayConfig, logger *zap.Logger) (collector.Relay, Closer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scrub, err := secrets.FromSettings(cfg.Scrub, cfg.Allowlist)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring scrubber: %w", err)
	}

	var (
		relays  Fanout
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	for _, sink := range cfg.Sinks {
		switch sink {
		case config.SinkHTTP:
			h, err := NewHTTP(HTTPConfig{
				BaseURL:   cfg.BaseURL,
				Token:     cfg.Token,
				ProfileID: cfg.ProfileID,
				RateLimit: cfg.RateLimit,
				Burst:     cfg.Burst,
				Timeout:   cfg.Timeout.Duration(),
			}, scrub, http.DefaultTransport, logger.Named("http"))
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			relays = append(relays, h)
		case config.SinkNATS:
			n, err := DialNATS(ctx, cfg.NATSURL, cfg.NATSSubject, scrub, logger.Named("nats"))
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			relays = append(relays, n)
			closers = append(closers, n.Close)
		default:
			_ = closeAll()
			return nil, nil, fmt.Errorf("unknown relay sink %q", sink)
		}
	}

	switch len(relays) {
	case 0:
		return Discard{}, closeAll, nil
	case 1:
		return relays[0], closeAll, nil
	default:
		return relays, closeAll, nil
	}
}

// scrubMessages returns a copy of msgs with secrets redacted.
func scrubMessages(s secrets.Scrubber, msgs []collector.Message, logger *zap.Logger) []collector.Message {
	out := make([]collector.Message, len(msgs))
	for i, m := range msgs {
		res := s.Scrub(m.Text)
		if res.HasFindings() {
			logger.Info("redacted secrets from message",
				zap.Int("findings", len(res.Findings)),
				zap.Any("rules", res.ByRule),
			)
		}
		out[i] = collector.Message{Role: m.Role, Text: res.Scrubbed}
	}
	return out
}
