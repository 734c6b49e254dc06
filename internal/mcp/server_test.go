package mcp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/config"
	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
	"github.com/fyrsmithlabs/contextkeeper/internal/store"
)

type captureRelay struct {
	mu      sync.Mutex
	batches []collector.Batch
}

func (r *captureRelay) Send(_ context.Context, b collector.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return nil
}

func (r *captureRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

const (
	pageOne = `<body><main>
<div data-message-author-role="user">What is a goroutine?</div>
</main></body>`
	pageTwo = `<body><main>
<div data-message-author-role="user">What is a goroutine?</div>
<div data-message-author-role="assistant">A lightweight thread managed by the Go runtime.</div>
</main></body>`
)

func newTestServer(t *testing.T) (*Server, *captureRelay) {
	t.Helper()
	patterns, err := dom.CompileAll(config.DefaultPatterns)
	require.NoError(t, err)

	relay := &captureRelay{}
	pipeline := collector.NewPipeline(
		collector.NewMatcher(patterns, collector.NewWalker(nil)),
		collector.NewDedup(store.NewMemory(), "", 0),
		collector.WithRelay(relay),
	)
	sessions := collector.NewSessions(context.Background(), pipeline)

	s, err := NewServer(nil, sessions, pipeline)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, relay
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil, nil)
	assert.ErrorContains(t, err, "sessions are required")

	s, _ := newTestServer(t)
	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.metrics)
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	s, relay := newTestServer(t)
	url := "https://chatgpt.com/c/abc"

	out, err := s.extract(ctx, extractInput{URL: url, HTML: pageOne})
	require.NoError(t, err)
	assert.Equal(t, "chatgpt.com", out.Source)
	assert.Equal(t, "/c/abc", out.ConversationID)
	assert.Equal(t, string(collector.ModeFull), out.Mode)
	assert.Equal(t, []collector.Message{{Role: collector.RoleUser, Text: "What is a goroutine?"}}, out.Messages)
	assert.True(t, out.Delivered)

	out, err = s.extract(ctx, extractInput{URL: url, HTML: pageTwo})
	require.NoError(t, err)
	assert.Equal(t, string(collector.ModeIncremental), out.Mode)
	assert.Equal(t, 1, out.Inserted)
	assert.Equal(t, []collector.Message{
		{Role: collector.RoleAssistant, Text: "A lightweight thread managed by the Go runtime."},
	}, out.Messages)

	// nothing new
	out, err = s.extract(ctx, extractInput{URL: url, HTML: pageTwo})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Inserted)
	assert.NotNil(t, out.Messages)
	assert.Empty(t, out.Messages)

	assert.Equal(t, 2, relay.count())
}

func TestExtract_DryRun(t *testing.T) {
	ctx := context.Background()
	s, relay := newTestServer(t)
	url := "https://claude.ai/chat/1"

	out, err := s.extract(ctx, extractInput{URL: url, HTML: pageTwo, DryRun: true})
	require.NoError(t, err)
	assert.Len(t, out.Messages, 2)
	assert.Equal(t, "claude.ai", out.Source)

	assert.Zero(t, relay.count())
	assert.Empty(t, s.sessions.Keys())
	assert.Zero(t, s.pipeline.Status().Fingerprints)

	// a real extraction still sees everything as new
	out, err = s.extract(ctx, extractInput{URL: url, HTML: pageTwo})
	require.NoError(t, err)
	assert.Len(t, out.Messages, 2)
}

func TestExtract_InvalidInput(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestServer(t)

	_, err := s.extract(ctx, extractInput{URL: "https://claude.ai/chat/1"})
	assert.ErrorIs(t, err, errEmptyHTML)

	_, err = s.extract(ctx, extractInput{URL: "/relative/only", HTML: pageOne})
	assert.ErrorContains(t, err, "invalid url")
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestServer(t)

	out, err := s.status(ctx, statusInput{})
	require.NoError(t, err)
	assert.Zero(t, out.Runs)
	assert.Empty(t, out.LastRun)
	assert.Equal(t, []string{}, out.Sessions)

	_, err = s.extract(ctx, extractInput{URL: "https://claude.ai/chat/1", HTML: pageTwo})
	require.NoError(t, err)

	out, err = s.status(ctx, statusInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Runs)
	assert.Equal(t, 2, out.Messages)
	assert.Equal(t, 2, out.Fingerprints)
	assert.NotEmpty(t, out.LastRun)
	assert.Equal(t, []string{"claude.ai/chat/1"}, out.Sessions)
}

func TestInstrumented(t *testing.T) {
	s, _ := newTestServer(t)
	m, reader := testMetrics(t)
	s.metrics = m

	h := instrumented(s, toolExtract, s.extract)
	res, _, err := h(context.Background(), nil, extractInput{URL: "https://claude.ai/x"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, errEmptyHTML)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(1), sums["contextkeeper.mcp.tool.invocations_total"])
	assert.Equal(t, int64(1), sums["contextkeeper.mcp.tool.errors_total"])
	assert.Zero(t, sums["contextkeeper.mcp.tool.active_requests"])
}
