package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/config"
	"github.com/fyrsmithlabs/contextkeeper/internal/secrets"
)

const (
	// MaxTextRunes caps the text of a single posted message.
	MaxTextRunes = 50000

	messagesPath   = "/context/messages"
	defaultTimeout = 10 * time.Second
	defaultRate    = 20
	defaultBurst   = 5
	tripAfter      = 5
)

// HTTPConfig configures the HTTP relay.
type HTTPConfig struct {
	BaseURL   string
	Token     config.Secret
	ProfileID string
	RateLimit float64
	Burst     int
	Timeout   time.Duration
}

// HTTP posts each message of a batch to {BaseURL}/context/messages.
// Requests are rate limited and guarded by a circuit breaker, so an
// unreachable backend fails fast instead of stalling every run.
type HTTP struct {
	endpoint  string
	profileID string
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	scrub     secrets.Scrubber
	logger    *zap.Logger
}

type messagePayload struct {
	Text           string  `json:"text"`
	Role           string  `json:"role"`
	Source         string  `json:"source"`
	ProfileID      *string `json:"profile_id"`
	ConversationID *string `json:"conversation_id"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// NewHTTP creates an HTTP relay. A nil transport uses
// http.DefaultTransport; a nil scrubber leaves text untouched.
func NewHTTP(cfg HTTPConfig, scrub secrets.Scrubber, transport http.RoundTripper, logger *zap.Logger) (*HTTP, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid relay base url %q", cfg.BaseURL)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	if scrub == nil {
		scrub = secrets.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}

	if cfg.Token.IsSet() {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()}),
			Base:   transport,
		}
	}

	h := &HTTP{
		endpoint:  strings.TrimRight(base.String(), "/") + messagesPath,
		profileID: cfg.ProfileID,
		client:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		scrub:     scrub,
		logger:    logger,
	}
	h.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "relay-http",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("relay circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// client errors mean the backend is up
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil
		},
	})
	return h, nil
}

// Endpoint returns the URL messages are posted to.
func (h *HTTP) Endpoint() string {
	return h.endpoint
}

// Send implements collector.Relay. Every message is attempted; failures are
// logged and returned together.
func (h *HTTP) Send(ctx context.Context, batch collector.Batch) error {
	source := batch.Source
	if source == "" {
		source = "unknown"
	}

	var errs []error
	for _, m := range scrubMessages(h.scrub, batch.Messages, h.logger) {
		p := messagePayload{
			Text:           truncate(m.Text, MaxTextRunes),
			Role:           string(collector.ParseRole(string(m.Role))),
			Source:         source,
			ProfileID:      optional(h.profileID),
			ConversationID: optional(batch.ConversationID),
		}
		if err := h.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rate limiter: %w", err))
			break
		}
		if _, err := h.breaker.Execute(func() (any, error) { return nil, h.post(ctx, p) }); err != nil {
			h.logger.Warn("failed to post message",
				zap.String("endpoint", h.endpoint),
				zap.String("role", p.Role),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		h.logger.Debug("posted message", zap.String("role", p.Role), zap.Int("bytes", len(p.Text)))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d messages not delivered: %w", len(errs), len(batch.Messages), errors.Join(errs...))
	}
	return nil
}

func (h *HTTP) post(ctx context.Context, p messagePayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
