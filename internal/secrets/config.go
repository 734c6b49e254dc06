package secrets

import (
	"fmt"
	"regexp"
)

// Engines.
const (
	EngineRegex    = "regex"
	EngineGitleaks = "gitleaks"
	EngineOff      = "off"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Config configures a Scrubber.
type Config struct {
	// Engine selects the detector: regex, gitleaks or off.
	Engine string

	// Rules are the patterns used by the regex engine.
	Rules []Rule

	// Redaction replaces detected secrets (default: [REDACTED]).
	Redaction string

	// Allowlist holds content regexes that are never redacted.
	Allowlist []string

	compiledRules     []*compiledRule
	compiledAllowlist []*regexp.Regexp
}

// Rule is one regex detection rule.
type Rule struct {
	ID      string
	Pattern string
	// Keywords, when set, must appear (case-insensitive) for the rule to run.
	Keywords []string
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns the regex engine with DefaultRules.
func DefaultConfig() *Config {
	return &Config{
		Engine:    EngineRegex,
		Rules:     DefaultRules(),
		Redaction: DefaultRedaction,
	}
}

// Validate checks the engine and compiles rules and allowlist.
func (c *Config) Validate() error {
	switch c.Engine {
	case "":
		c.Engine = EngineRegex
	case EngineRegex, EngineGitleaks, EngineOff:
	default:
		return fmt.Errorf("unknown scrub engine %q", c.Engine)
	}
	if c.Redaction == "" {
		c.Redaction = DefaultRedaction
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		cr := &compiledRule{id: rule.ID, pattern: re}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		c.compiledRules = append(c.compiledRules, cr)
	}

	c.compiledAllowlist = make([]*regexp.Regexp, 0, len(c.Allowlist))
	for i, pattern := range c.Allowlist {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allowlist %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowlist = append(c.compiledAllowlist, re)
	}
	return nil
}

func (c *Config) allowed(match string) bool {
	for _, re := range c.compiledAllowlist {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}
