package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
	"github.com/fyrsmithlabs/contextkeeper/internal/logging"
)

// DefaultDebounce is the quiet period after the last insertion before the
// pending nodes are scanned.
const DefaultDebounce = 200 * time.Millisecond

// Scheduler runs fn once after d. The returned cancel func reports whether
// it stopped fn from running.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func() bool)
}

// TimerScheduler schedules with time.AfterFunc.
type TimerScheduler struct{}

// Schedule implements Scheduler.
func (TimerScheduler) Schedule(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Scanner runs an incremental scan over inserted nodes.
type Scanner interface {
	IncrementalScan(ctx context.Context, nodes []dom.Node) (*Result, error)
}

// Observer batches inserted nodes and hands each burst to a Scanner once
// insertions have been quiet for the debounce window.
type Observer struct {
	ctx     context.Context
	scanner Scanner
	sched   Scheduler
	delay   time.Duration
	logger  *logging.Logger

	mu      sync.Mutex
	pending []dom.Node
	cancel  func() bool
	gen     uint64
	stopped bool
}

// ObserverOption configures an Observer.
type ObserverOption func(*Observer)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) ObserverOption {
	return func(o *Observer) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithScheduler replaces the timer implementation.
func WithScheduler(s Scheduler) ObserverOption {
	return func(o *Observer) {
		o.sched = s
	}
}

// WithObserverLogger sets the logger for scans started by the timer.
func WithObserverLogger(l *logging.Logger) ObserverOption {
	return func(o *Observer) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewObserver creates an observer feeding s. Scans started by the timer run
// with ctx.
func NewObserver(ctx context.Context, s Scanner, opts ...ObserverOption) *Observer {
	o := &Observer{
		ctx:     ctx,
		scanner: s,
		sched:   TimerScheduler{},
		delay:   DefaultDebounce,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Notify adds inserted nodes to the pending batch and restarts the debounce
// timer.
func (o *Observer) Notify(nodes ...dom.Node) {
	if len(nodes) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	o.pending = append(o.pending, nodes...)
	if o.cancel != nil {
		o.cancel()
	}
	o.gen++
	gen := o.gen
	o.cancel = o.sched.Schedule(o.delay, func() { o.fire(gen) })
}

// Pending returns the number of nodes waiting for the timer.
func (o *Observer) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *Observer) fire(gen uint64) {
	o.mu.Lock()
	if o.stopped || gen != o.gen {
		o.mu.Unlock()
		return
	}
	nodes := o.take()
	o.mu.Unlock()

	if len(nodes) == 0 {
		return
	}
	// nobody waits on a timer scan, so its error ends here
	if _, err := o.scanner.IncrementalScan(o.ctx, nodes); err != nil {
		log := o.logger.Warn
		if errors.Is(err, context.Canceled) {
			log = o.logger.Debug
		}
		log(o.ctx, "debounced scan dropped pending nodes",
			zap.Int("nodes", len(nodes)),
			zap.Error(err),
		)
	}
}

// take detaches the pending batch. Caller holds mu.
func (o *Observer) take() []dom.Node {
	nodes := o.pending
	o.pending = nil
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
	return nodes
}

// Flush scans the pending batch now instead of waiting for the timer.
func (o *Observer) Flush(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	nodes := o.take()
	o.mu.Unlock()

	if len(nodes) == 0 {
		return &Result{}, nil
	}
	return o.scanner.IncrementalScan(ctx, nodes)
}

// Stop cancels the timer and discards pending nodes. A scan that is
// already running is not interrupted. Call Flush first to keep the pending
// batch.
func (o *Observer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.take()
	o.stopped = true
}
