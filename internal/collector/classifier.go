package collector

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
)

// Strategy is one named role heuristic. Classify returns RoleNone when the
// strategy has no opinion.
type Strategy struct {
	Name     string
	Classify func(c Candidate) Role
}

// Strategy names, also used as metric labels.
const (
	StrategySpeakerAttribute   = "speaker-attribute"
	StrategyLabelText          = "label-text"
	StrategyResponseAffordance = "response-affordance"
	StrategyClassToken         = "class-token"
)

var (
	speakerAttributes = []string{"data-author", "data-message-author-role", "data-role", "data-speaker"}

	speakerAssistant = tokenSet("assistant", "bot", "ai", "claude", "chatgpt", "model")
	speakerUser      = tokenSet("user", "human", "you")

	classAssistant = tokenSet("assistant", "bot", "ai", "model", "response")
	classUser      = tokenSet("user", "human", "you", "owner", "me")

	assistantLabel  = regexp.MustCompile(`(?i)\b(claude|assistant|chatgpt|bot|ai)\b`)
	affordanceWords = regexp.MustCompile(`(?i)\b(copy|regenerate|retry|thumbs|share)`)

	labelPattern  = dom.MustCompile("h3, strong, span")
	imgAltPattern = dom.MustCompile("img[alt]")
	buttonPattern = dom.MustCompile(`button, [role="button"]`)
)

// maxLabelRunes keeps the label-text strategy to short captions; a long span
// is message content, not a speaker label.
const maxLabelRunes = 40

// DefaultStrategies returns the role heuristics in precedence order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategySpeakerAttribute, Classify: bySpeakerAttribute},
		{Name: StrategyLabelText, Classify: byLabelText},
		{Name: StrategyResponseAffordance, Classify: byResponseAffordance},
		{Name: StrategyClassToken, Classify: byClassToken},
	}
}

// Classifier attributes a speaker to a candidate by trying strategies in
// order and returning the first opinion.
type Classifier struct {
	strategies []Strategy
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithStrategies replaces the strategy list.
func WithStrategies(s ...Strategy) ClassifierOption {
	return func(c *Classifier) {
		c.strategies = s
	}
}

// NewClassifier creates a classifier with DefaultStrategies unless
// overridden.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{strategies: DefaultStrategies()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the role and the name of the deciding strategy, or
// RoleNone and "" when no strategy matched.
func (c *Classifier) Classify(cand Candidate) (Role, string) {
	if cand.Node == nil {
		return RoleNone, ""
	}
	for _, s := range c.strategies {
		if r := s.Classify(cand); r.Valid() {
			return r, s.Name
		}
	}
	return RoleNone, ""
}

func bySpeakerAttribute(c Candidate) Role {
	for n := c.Node; n != nil; n = n.Parent() {
		for _, name := range speakerAttributes {
			v, ok := n.Attribute(name)
			if !ok {
				continue
			}
			// the nearest carrier decides, even when its value is unknown
			return roleFromTokens(tokens(v), speakerAssistant, speakerUser)
		}
	}
	return RoleNone
}

func byLabelText(c Candidate) Role {
	found := false
	descendants(c.Node, func(n dom.Node) bool {
		switch {
		case n.Matches(imgAltPattern):
			alt, _ := n.Attribute("alt")
			found = assistantLabel.MatchString(alt)
		case n.Matches(labelPattern):
			text := n.Text()
			found = len([]rune(text)) <= maxLabelRunes && assistantLabel.MatchString(text)
		}
		return !found
	})
	if found {
		return RoleAssistant
	}
	return RoleNone
}

func byResponseAffordance(c Candidate) Role {
	if !affordanceWords.MatchString(c.Text) {
		return RoleNone
	}
	hasButton := false
	descendants(c.Node, func(n dom.Node) bool {
		hasButton = n.Matches(buttonPattern)
		return !hasButton
	})
	if hasButton {
		return RoleAssistant
	}
	return RoleNone
}

func byClassToken(c Candidate) Role {
	class, ok := c.Node.Attribute("class")
	if !ok {
		return RoleNone
	}
	return roleFromTokens(tokens(class), classAssistant, classUser)
}

// descendants visits the light-tree descendants of n, excluding n, until
// visit returns false.
func descendants(n dom.Node, visit func(dom.Node) bool) bool {
	for _, c := range n.Children() {
		if !visit(c) || !descendants(c, visit) {
			return false
		}
	}
	return true
}

func roleFromTokens(toks []string, assistant, user map[string]bool) Role {
	for _, t := range toks {
		if assistant[t] {
			return RoleAssistant
		}
	}
	for _, t := range toks {
		if user[t] {
			return RoleUser
		}
	}
	return RoleNone
}

// tokens lowercases s and splits it on anything that is not a letter or a
// digit, so "from-assistant" and "msg_user" yield their parts.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
