package collector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
	"github.com/fyrsmithlabs/contextkeeper/internal/logging"
)

// ErrSessionClosed is returned by Apply after Close.
var ErrSessionClosed = errors.New("session closed")

// SourceFor maps a page URL to the source name and conversation id batches
// are tagged with. Known chat hosts get canonical names.
func SourceFor(u *url.URL) (source, conversationID string) {
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "openai"):
		source = "chat.openai.com"
	case strings.Contains(host, "claude.ai"):
		source = "claude.ai"
	case strings.Contains(host, "chatgpt"):
		source = "chatgpt.com"
	default:
		source = host
	}
	conversationID = u.EscapedPath()
	if conversationID == "" {
		conversationID = "/"
	}
	return source, conversationID
}

// Applied reports what a snapshot caused.
type Applied struct {
	// Full is set when the snapshot triggered a full scan.
	Full *Result `json:"full,omitempty"`
	// Inserted counts nodes handed to the observer.
	Inserted int `json:"inserted"`
}

// Session tracks one page. The first snapshot is scanned in full; later
// snapshots are diffed against their predecessor and the inserted nodes go
// through the session's Observer.
type Session struct {
	Source         string
	ConversationID string

	ctx      context.Context
	pipeline *Pipeline
	observer *Observer

	mu     sync.Mutex
	prev   *dom.Document
	closed bool
}

// NewSession creates a session for pageURL. Debounced scans run with ctx.
func NewSession(ctx context.Context, pageURL *url.URL, p *Pipeline, opts ...ObserverOption) *Session {
	source, conv := SourceFor(pageURL)
	ctx = logging.WithConversation(ctx, source, conv)
	return &Session{
		Source:         source,
		ConversationID: conv,
		ctx:            ctx,
		pipeline:       p,
		observer:       NewObserver(ctx, p, append([]ObserverOption{WithObserverLogger(p.logger)}, opts...)...),
	}
}

// Apply feeds a new snapshot of the page.
func (s *Session) Apply(ctx context.Context, doc *dom.Document) (Applied, error) {
	if doc == nil {
		return Applied{}, ErrNilRoot
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Applied{}, ErrSessionClosed
	}

	prev := s.prev
	s.prev = doc
	if prev == nil {
		res, err := s.pipeline.FullScan(s.scoped(ctx), doc.Root())
		if err != nil {
			return Applied{}, err
		}
		return Applied{Full: res}, nil
	}

	inserted := dom.Diff(prev, doc)
	s.observer.Notify(inserted...)
	return Applied{Inserted: len(inserted)}, nil
}

// Flush scans inserted nodes still waiting for the debounce timer.
func (s *Session) Flush(ctx context.Context) (*Result, error) {
	return s.observer.Flush(s.scoped(ctx))
}

// Close stops the observer. Pending nodes are dropped; Flush first to keep
// them.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.observer.Stop()
}

func (s *Session) scoped(ctx context.Context) context.Context {
	return logging.WithConversation(ctx, s.Source, s.ConversationID)
}

// Sessions is a registry of sessions keyed by source and conversation.
type Sessions struct {
	ctx      context.Context
	pipeline *Pipeline
	opts     []ObserverOption

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates a registry whose sessions share p.
func NewSessions(ctx context.Context, p *Pipeline, opts ...ObserverOption) *Sessions {
	return &Sessions{
		ctx:      ctx,
		pipeline: p,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for rawURL, creating it on first use.
func (r *Sessions) Get(rawURL string) (*Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid page url %q: missing host", rawURL)
	}
	source, conv := SourceFor(u)
	key := source + conv

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s, nil
	}
	s := NewSession(r.ctx, u, r.pipeline, r.opts...)
	r.sessions[key] = s
	return s, nil
}

// Keys lists the registered sessions as source plus conversation id.
func (r *Sessions) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close flushes and stops every session.
func (r *Sessions) Close(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if _, err := s.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", s.Source, s.ConversationID, err))
		}
		s.Close()
	}
	return errors.Join(errs...)
}
