package collector

import (
	"strings"

	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
)

var (
	mainPattern = dom.MustCompile("main")
	bodyPattern = dom.MustCompile("body")
)

// Matcher locates message candidates using an ordered list of patterns,
// most specific first.
type Matcher struct {
	patterns []*dom.Pattern
	walker   *Walker
}

// NewMatcher creates a matcher over patterns using walker for traversal.
func NewMatcher(patterns []*dom.Pattern, walker *Walker) *Matcher {
	if walker == nil {
		walker = NewWalker(nil)
	}
	return &Matcher{patterns: patterns, walker: walker}
}

// Patterns returns the patterns in evaluation order.
func (m *Matcher) Patterns() []*dom.Pattern {
	return m.patterns
}

// Match returns the candidates of the first pattern that yields at least one
// node with non-empty text. Results of different patterns are never merged.
func (m *Matcher) Match(root dom.Node) []Candidate {
	for _, p := range m.patterns {
		var out []Candidate
		for _, n := range m.walker.FindAll(root, p) {
			if c, ok := candidateOf(n); ok {
				out = append(out, c)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// Discover is Match with a structural fallback: when no pattern matches,
// each direct child of the main region with non-empty text is a candidate.
// The main region is the first <main> element, else <body>, else root.
func (m *Matcher) Discover(root dom.Node) []Candidate {
	if out := m.Match(root); len(out) > 0 {
		return out
	}

	region := m.walker.FindFirst(root, mainPattern)
	if region == nil {
		region = m.walker.FindFirst(root, bodyPattern)
	}
	if region == nil {
		region = root
	}
	if region == nil {
		return nil
	}

	var out []Candidate
	for _, ch := range region.Children() {
		if c, ok := candidateOf(ch); ok {
			out = append(out, c)
		}
	}
	return out
}

func candidateOf(n dom.Node) (Candidate, bool) {
	text := strings.TrimSpace(n.Text())
	if text == "" {
		return Candidate{}, false
	}
	return Candidate{Node: n, Text: text}, true
}
