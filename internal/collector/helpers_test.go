package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
)

func parse(t *testing.T, src string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(src)
	require.NoError(t, err)
	return doc
}

func find(t *testing.T, root dom.Node, expr string) dom.Node {
	t.Helper()
	n := NewWalker(nil).FindFirst(root, dom.MustCompile(expr))
	require.NotNil(t, n, "no node matches %s", expr)
	return n
}

func defaultMatcher() *Matcher {
	patterns, err := dom.CompileAll([]string{
		`[data-message-author-role]`,
		`div[data-testid="message"]`,
		`div[role="listitem"]`,
		`.message`,
		`.chat-message`,
		`.Message`,
	})
	if err != nil {
		panic(err)
	}
	return NewMatcher(patterns, NewWalker(nil))
}

type memPersister struct {
	mu     sync.Mutex
	data   map[string][]string
	sets   int
	getErr error
	setErr error
}

func newMemPersister() *memPersister {
	return &memPersister{data: make(map[string][]string)}
}

func (m *memPersister) Get(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return append([]string(nil), m.data[key]...), nil
}

func (m *memPersister) Set(_ context.Context, key string, fps []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = append([]string(nil), fps...)
	return nil
}

type recordingRelay struct {
	mu      sync.Mutex
	batches []Batch
	err     error
}

func (r *recordingRelay) Send(_ context.Context, b Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, b)
	return nil
}

func (r *recordingRelay) Batches() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

var errRelayDown = errors.New("relay down")

// manualScheduler fires scheduled funcs only when told to.
type manualScheduler struct {
	mu        sync.Mutex
	scheduled int
	cancelled int
	pending   []*manualTimer
}

type manualTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (s *manualScheduler) Schedule(d time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{d: d, fn: fn}
	s.scheduled++
	s.pending = append(s.pending, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.stopped {
			return false
		}
		t.stopped = true
		s.cancelled++
		return true
	}
}

// FireAll runs every timer that was not cancelled.
func (s *manualScheduler) FireAll() {
	s.mu.Lock()
	var live []*manualTimer
	for _, t := range s.pending {
		if !t.stopped {
			t.stopped = true
			live = append(live, t)
		}
	}
	s.pending = nil
	s.mu.Unlock()
	for _, t := range live {
		t.fn()
	}
}

type scanCall struct {
	ctx   context.Context
	nodes []dom.Node
}

type recordingScanner struct {
	mu    sync.Mutex
	calls []scanCall
}

func (r *recordingScanner) IncrementalScan(ctx context.Context, nodes []dom.Node) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, scanCall{ctx: ctx, nodes: nodes})
	return &Result{Mode: ModeIncremental}, nil
}

func (r *recordingScanner) Calls() []scanCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scanCall(nil), r.calls...)
}
