package collector

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
	"github.com/fyrsmithlabs/contextkeeper/internal/logging"
)

func testNodes(t *testing.T, n int) []dom.Node {
	t.Helper()
	doc := parse(t, "<body><p>a</p><p>b</p><p>c</p><p>d</p></body>")
	kids := find(t, doc.Root(), "body").Children()
	require.GreaterOrEqual(t, len(kids), n)
	return kids[:n]
}

func TestObserver_DebouncesBursts(t *testing.T) {
	sched := &manualScheduler{}
	scanner := &recordingScanner{}
	o := NewObserver(context.Background(), scanner, WithScheduler(sched), WithDebounce(50*time.Millisecond))

	nodes := testNodes(t, 3)
	o.Notify(nodes[0])
	o.Notify(nodes[1], nodes[2])
	assert.Equal(t, 3, o.Pending())
	assert.Equal(t, 2, sched.scheduled)
	assert.Equal(t, 1, sched.cancelled)
	assert.Equal(t, 50*time.Millisecond, sched.pending[1].d)

	sched.FireAll()

	calls := scanner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, nodes, calls[0].nodes)
	assert.Zero(t, o.Pending())
}

func TestObserver_StaleTimerIgnored(t *testing.T) {
	sched := &manualScheduler{}
	scanner := &recordingScanner{}
	o := NewObserver(context.Background(), scanner, WithScheduler(sched))

	nodes := testNodes(t, 2)
	o.Notify(nodes[0])
	stale := sched.pending[0]
	o.Notify(nodes[1])

	// a timer that already started firing when it was replaced
	stale.fn()
	assert.Empty(t, scanner.Calls())

	sched.FireAll()
	require.Len(t, scanner.Calls(), 1)
	assert.Len(t, scanner.Calls()[0].nodes, 2)
}

func TestObserver_FiredScanUsesObserverContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "page")

	sched := &manualScheduler{}
	scanner := &recordingScanner{}
	o := NewObserver(ctx, scanner, WithScheduler(sched))
	o.Notify(testNodes(t, 1)...)
	sched.FireAll()

	require.Len(t, scanner.Calls(), 1)
	assert.Equal(t, "page", scanner.Calls()[0].ctx.Value(key{}))
}

func TestObserver_Flush(t *testing.T) {
	sched := &manualScheduler{}
	scanner := &recordingScanner{}
	o := NewObserver(context.Background(), scanner, WithScheduler(sched))

	res, err := o.Flush(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
	assert.Empty(t, scanner.Calls())

	o.Notify(testNodes(t, 2)...)
	_, err = o.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, scanner.Calls(), 1)

	// the cancelled timer must not scan again
	sched.FireAll()
	assert.Len(t, scanner.Calls(), 1)
}

func TestObserver_Stop(t *testing.T) {
	sched := &manualScheduler{}
	scanner := &recordingScanner{}
	o := NewObserver(context.Background(), scanner, WithScheduler(sched))

	o.Notify(testNodes(t, 1)...)
	o.Stop()
	sched.FireAll()
	o.Notify(testNodes(t, 1)...)

	assert.Empty(t, scanner.Calls())
	assert.Zero(t, o.Pending())
}

func TestObserver_RealTimer(t *testing.T) {
	var scans atomic.Int32
	done := make(chan struct{}, 4)
	scanner := scannerFunc(func(ctx context.Context, nodes []dom.Node) (*Result, error) {
		scans.Add(1)
		done <- struct{}{}
		return &Result{}, nil
	})

	o := NewObserver(context.Background(), scanner, WithDebounce(20*time.Millisecond))
	defer o.Stop()
	nodes := testNodes(t, 4)
	for _, n := range nodes {
		o.Notify(n)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced scan did not run")
	}
	assert.GreaterOrEqual(t, scans.Load(), int32(1))
}

type scannerFunc func(ctx context.Context, nodes []dom.Node) (*Result, error)

func (f scannerFunc) IncrementalScan(ctx context.Context, nodes []dom.Node) (*Result, error) {
	return f(ctx, nodes)
}

type failingScanner struct {
	err error
}

func (f failingScanner) IncrementalScan(context.Context, []dom.Node) (*Result, error) {
	return nil, f.err
}

func TestObserver_LogsTimerScanErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level zapcore.Level
	}{
		{"scan failure", errors.New("boom"), zapcore.WarnLevel},
		{"cancelled session", context.Canceled, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := logging.NewTestLogger()
			sched := &manualScheduler{}
			o := NewObserver(context.Background(), failingScanner{err: tt.err},
				WithScheduler(sched), WithObserverLogger(log.Logger))

			o.Notify(testNodes(t, 2)...)
			sched.FireAll()

			log.AssertLogged(t, tt.level, "debounced scan dropped pending nodes")
			assert.Zero(t, o.Pending())
		})
	}
}

func TestSession_TimerScanUsesPipelineLogger(t *testing.T) {
	log := logging.NewTestLogger()
	pl, _, _ := newTestPipeline(t, WithLogger(log.Logger))
	sched := &manualScheduler{}
	ctx, cancel := context.WithCancel(context.Background())
	u, _ := url.Parse("https://claude.ai/chat/3")
	s := NewSession(ctx, u, pl, WithScheduler(sched))

	_, err := s.Apply(context.Background(), parse(t, `<body><main></main></body>`))
	require.NoError(t, err)
	_, err = s.Apply(context.Background(), parse(t, `<body><main><div class="message">late</div></main></body>`))
	require.NoError(t, err)

	cancel()
	sched.FireAll()

	log.AssertLogged(t, zapcore.DebugLevel, "debounced scan dropped pending nodes")
}
