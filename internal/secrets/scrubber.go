package secrets

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Scrubber redacts secrets from text.
type Scrubber interface {
	Scrub(text string) *Result
	Engine() string
}

// New creates the scrubber selected by cfg.Engine. A nil cfg uses
// DefaultConfig.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Engine {
	case EngineOff:
		return Noop{}, nil
	case EngineGitleaks:
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("loading gitleaks rules: %w", err)
		}
		return &gitleaksScrubber{cfg: cfg, detector: d}, nil
	default:
		return &regexScrubber{cfg: cfg}, nil
	}
}

type span struct {
	start, end int
}

type regexScrubber struct {
	cfg *Config
}

func (s *regexScrubber) Engine() string { return EngineRegex }

func (s *regexScrubber) Scrub(text string) *Result {
	res := unchanged(text)
	var spans []span

	for _, rule := range s.cfg.compiledRules {
		if len(rule.keywords) > 0 && !slices.ContainsFunc(rule.keywords, func(kw *regexp.Regexp) bool {
			return kw.MatchString(text)
		}) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(text, -1) {
			if s.cfg.allowed(text[m[0]:m[1]]) {
				continue
			}
			res.add(rule.id, strings.Count(text[:m[0]], "\n")+1)
			spans = append(spans, span{m[0], m[1]})
		}
	}

	if len(spans) > 0 {
		res.Scrubbed = redact(text, merge(spans), s.cfg.Redaction)
	}
	return res
}

// merge sorts spans and joins the overlapping ones.
func merge(spans []span) []span {
	slices.SortFunc(spans, func(a, b span) int { return cmp.Compare(a.start, b.start) })
	out := spans[:1]
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start <= last.end {
			last.end = max(last.end, sp.end)
			continue
		}
		out = append(out, sp)
	}
	return out
}

func redact(text string, spans []span, with string) string {
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		b.WriteString(text[prev:sp.start])
		b.WriteString(with)
		prev = sp.end
	}
	b.WriteString(text[prev:])
	return b.String()
}

// gitleaksScrubber runs the gitleaks default rule set. The detector keeps
// per-scan state, so scans are serialized.
type gitleaksScrubber struct {
	cfg      *Config
	mu       sync.Mutex
	detector *detect.Detector
}

func (s *gitleaksScrubber) Engine() string { return EngineGitleaks }

func (s *gitleaksScrubber) Scrub(text string) *Result {
	s.mu.Lock()
	findings := s.detector.DetectString(text)
	s.mu.Unlock()

	res := unchanged(text)
	scrubbed := text
	for _, f := range findings {
		if f.Secret == "" || s.cfg.allowed(f.Secret) {
			continue
		}
		res.add(f.RuleID, f.StartLine)
		scrubbed = strings.ReplaceAll(scrubbed, f.Secret, s.cfg.Redaction)
	}
	res.Scrubbed = scrubbed
	return res
}

// Noop returns text unchanged.
type Noop struct{}

// Scrub implements Scrubber.
func (Noop) Scrub(text string) *Result { return unchanged(text) }

// Engine implements Scrubber.
func (Noop) Engine() string { return EngineOff }
