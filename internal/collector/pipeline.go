package collector

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
	"github.com/fyrsmithlabs/contextkeeper/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/contextkeeper/internal/collector"

// ErrNilRoot is returned when a full scan is given no document.
var ErrNilRoot = errors.New("scan root is nil")

// Mode is the kind of pipeline run.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Role decision sources that are not classifier strategies.
const (
	sourceMarker    = "marker"
	sourceParity    = "parity"
	sourceHeuristic = "heuristic"
)

var assistantOpening = regexp.MustCompile(`(?i)^\s*(chatgpt|assistant|claude)`)

// Result describes one pipeline run.
type Result struct {
	RunID      string    `json:"run_id"`
	Mode       Mode      `json:"mode"`
	Candidates int       `json:"candidates"`
	Duplicates int       `json:"duplicates"`
	Messages   []Message `json:"messages"`
	Delivered  bool      `json:"delivered"`
}

// Status is a point-in-time view of pipeline activity.
type Status struct {
	Runs         int       `json:"runs"`
	Messages     int       `json:"messages"`
	Fingerprints int       `json:"fingerprints"`
	LastRun      time.Time `json:"last_run,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
}

// Pipeline turns candidate nodes into new, deduplicated messages and hands
// them to a Relay. Runs are serialized.
type Pipeline struct {
	matcher    *Matcher
	classifier *Classifier
	segmenter  *Segmenter
	dedup      *Dedup
	relay      Relay
	logger     *logging.Logger
	tracer     trace.Tracer

	mu     sync.Mutex
	status Status
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRelay sets where new batches are sent. Without one, batches are only
// recorded in the dedup store.
func WithRelay(r Relay) PipelineOption {
	return func(p *Pipeline) { p.relay = r }
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *Classifier) PipelineOption {
	return func(p *Pipeline) { p.classifier = c }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *logging.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithTracerProvider sets the provider for run spans.
func WithTracerProvider(tp trace.TracerProvider) PipelineOption {
	return func(p *Pipeline) { p.tracer = tp.Tracer(instrumentationName) }
}

// NewPipeline creates a pipeline over matcher and dedup.
func NewPipeline(m *Matcher, d *Dedup, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		matcher:    m,
		classifier: NewClassifier(),
		segmenter:  NewSegmenter(),
		dedup:      d,
		logger:     logging.NewNop(),
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DryRun returns a pipeline with the same matcher and classifier whose
// dedup starts from a copy of p's fingerprints. It has no relay and never
// persists, so its runs leave p untouched.
func (p *Pipeline) DryRun() *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &Pipeline{
		matcher:    p.matcher,
		classifier: p.classifier,
		segmenter:  p.segmenter,
		dedup:      p.dedup.detach(),
		logger:     p.logger,
		tracer:     p.tracer,
	}
}

// FullScan extracts messages from the whole tree under root. Roles the
// classifier cannot decide alternate between user and assistant, starting
// with user.
func (p *Pipeline) FullScan(ctx context.Context, root dom.Node) (*Result, error) {
	if root == nil {
		return nil, ErrNilRoot
	}
	// Parity advances only when it decides a role. Segments settled by the
	// classifier leave it alone, unlike a toggle on every unmarked segment.
	next := RoleUser
	parity := func(string) Role {
		r := next
		next = next.other()
		return r
	}
	return p.run(ctx, ModeFull, sourceParity, parity, func() []Candidate {
		return p.matcher.Discover(root)
	})
}

// IncrementalScan extracts messages from inserted nodes. A node in which no
// pattern matches is itself a candidate. Undecided roles are inferred from
// the shape of the text.
func (p *Pipeline) IncrementalScan(ctx context.Context, nodes []dom.Node) (*Result, error) {
	return p.run(ctx, ModeIncremental, sourceHeuristic, ShapeRole, func() []Candidate {
		var out []Candidate
		for _, n := range nodes {
			if n == nil {
				continue
			}
			if found := p.matcher.Match(n); len(found) > 0 {
				out = append(out, found...)
				continue
			}
			if c, ok := candidateOf(n); ok {
				out = append(out, c)
			}
		}
		return out
	})
}

// ShapeRole guesses a speaker from text alone: text opening with an
// assistant name, longer than 200 runes, or spanning more than three lines
// is an assistant message.
func ShapeRole(text string) Role {
	if assistantOpening.MatchString(text) ||
		utf8.RuneCountInString(text) > 200 ||
		strings.Count(text, "\n") >= 3 {
		return RoleAssistant
	}
	return RoleUser
}

func (p *Pipeline) run(ctx context.Context, mode Mode, fbName string, fallback func(string) Role, collect func() []Candidate) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	res := &Result{RunID: uuid.NewString(), Mode: mode}
	ctx = logging.WithRunID(ctx, res.RunID)
	conv, _ := logging.ConversationFromContext(ctx)

	ctx, span := p.tracer.Start(ctx, "collector."+string(mode)+"_scan",
		trace.WithAttributes(
			attribute.String("run.id", res.RunID),
			attribute.String("source", conv.Source),
			attribute.String("conversation.id", conv.ID),
		),
	)
	defer span.End()

	RunsTotal.WithLabelValues(string(mode)).Inc()
	defer func() {
		RunDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}()

	candidates := collect()
	res.Candidates = len(candidates)
	CandidatesTotal.WithLabelValues(string(mode)).Add(float64(len(candidates)))

	for _, c := range candidates {
		for _, m := range p.resolve(ctx, c, fbName, fallback) {
			fp := Fingerprint(m)
			if p.dedup.Has(fp) {
				res.Duplicates++
				MessagesTotal.WithLabelValues(string(m.Role), "duplicate").Inc()
				continue
			}
			p.dedup.Record(fp)
			res.Messages = append(res.Messages, m)
			MessagesTotal.WithLabelValues(string(m.Role), "new").Inc()
		}
	}

	span.SetAttributes(
		attribute.Int("candidates", res.Candidates),
		attribute.Int("messages.new", len(res.Messages)),
		attribute.Int("messages.duplicate", res.Duplicates),
	)

	p.status.Runs++
	p.status.LastRun = start
	p.status.Fingerprints = p.dedup.Len()

	if len(res.Messages) == 0 {
		p.logger.Debug(ctx, "no new messages",
			zap.String("mode", string(mode)),
			zap.Int("candidates", res.Candidates),
			zap.Int("duplicates", res.Duplicates),
		)
		return res, nil
	}

	p.status.Messages += len(res.Messages)
	p.logger.Info(ctx, "extracted new messages",
		zap.String("mode", string(mode)),
		zap.Int("candidates", res.Candidates),
		zap.Int("new", len(res.Messages)),
		zap.Int("duplicates", res.Duplicates),
	)

	res.Delivered = p.deliver(ctx, span, Batch{
		Messages:       res.Messages,
		Source:         conv.Source,
		ConversationID: conv.ID,
	})
	return res, nil
}

// resolve splits a candidate into messages and settles every role: the
// segment's marker first, then the classifier, then the fallback.
func (p *Pipeline) resolve(ctx context.Context, c Candidate, fbName string, fallback func(string) Role) []Message {
	segs := p.segmenter.Split(c.Text)

	classified, strategy := RoleNone, ""
	classifiedOnce := false

	out := make([]Message, 0, len(segs))
	for _, seg := range segs {
		role, source := seg.Role, sourceMarker
		if !role.Valid() {
			if !classifiedOnce {
				classified, strategy = p.classifier.Classify(c)
				classifiedOnce = true
			}
			role, source = classified, strategy
		}
		if !role.Valid() {
			role, source = fallback(seg.Text), fbName
		}
		RoleSource.WithLabelValues(source).Inc()
		p.logger.Trace(ctx, "role resolved",
			zap.String("role", string(role)),
			zap.String("by", source),
			logging.Preview("text", seg.Text),
		)
		out = append(out, Message{Role: role, Text: seg.Text})
	}
	return out
}

// deliver persists the dedup store and relays the batch. Failures are
// logged and recorded in the status, never returned.
func (p *Pipeline) deliver(ctx context.Context, span trace.Span, batch Batch) bool {
	p.status.LastError = ""

	if err := p.dedup.Save(ctx); err != nil {
		DeliveryErrors.WithLabelValues("save").Inc()
		span.RecordError(err)
		p.status.LastError = err.Error()
		p.logger.Error(ctx, "failed to save fingerprints", zap.Error(err))
	}

	if p.relay == nil {
		return false
	}
	if err := p.relay.Send(ctx, batch); err != nil {
		DeliveryErrors.WithLabelValues("relay").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay failed")
		p.status.LastError = err.Error()
		p.logger.Error(ctx, "failed to relay messages",
			zap.Int("count", len(batch.Messages)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// LoadState restores dedup fingerprints from persistence.
func (p *Pipeline) LoadState(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dedup.Load(ctx); err != nil {
		return err
	}
	p.status.Fingerprints = p.dedup.Len()
	p.logger.Debug(ctx, "loaded fingerprints", zap.Int("count", p.dedup.Len()))
	return nil
}

// Status returns a snapshot of pipeline activity.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.Fingerprints = p.dedup.Len()
	return s
}
