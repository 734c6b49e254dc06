package secrets

// Result is the outcome of scrubbing one text.
type Result struct {
	Scrubbed string `json:"-"`

	// Findings never carry the secret itself.
	Findings []Finding `json:"findings,omitempty"`

	// ByRule counts findings per rule.
	ByRule map[string]int `json:"by_rule,omitempty"`
}

// Finding locates one redacted secret.
type Finding struct {
	RuleID string `json:"rule_id"`
	Line   int    `json:"line"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

func unchanged(text string) *Result {
	return &Result{Scrubbed: text, ByRule: map[string]int{}}
}

func (r *Result) add(ruleID string, line int) {
	r.Findings = append(r.Findings, Finding{RuleID: ruleID, Line: line})
	r.ByRule[ruleID]++
}
