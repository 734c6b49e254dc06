package secrets

// DefaultRules returns patterns for credentials that are often pasted into
// conversations. Prefix-identified tokens need no keywords.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "anthropic-api-key", Pattern: `sk-ant-[A-Za-z0-9_\-]{32,}`},
		{ID: "openai-api-key", Pattern: `sk-(?:proj-)?[A-Za-z0-9_\-]{32,}`},
		{ID: "aws-access-key-id", Pattern: `(?:AKIA|ASIA|AGPA|AIDA|AROA)[A-Z0-9]{16}`},
		{
			ID:       "aws-secret-access-key",
			Pattern:  `(?i)aws_?secret_?(?:access_?)?key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
			Keywords: []string{"aws"},
		},
		{ID: "github-token", Pattern: `(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}`},
		{ID: "github-fine-grained", Pattern: `github_pat_[A-Za-z0-9_]{22,}`},
		{ID: "gitlab-token", Pattern: `glpat-[A-Za-z0-9\-]{20,}`},
		{ID: "slack-token", Pattern: `xox[baprs]-[A-Za-z0-9\-]{10,}`},
		{ID: "stripe-key", Pattern: `(?:sk|rk)_live_[A-Za-z0-9]{24,}`},
		{ID: "google-api-key", Pattern: `AIza[A-Za-z0-9_\-]{35}`},
		{ID: "jwt", Pattern: `eyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+`},
		{ID: "private-key", Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`},
		{
			ID:       "connection-string",
			Pattern:  `(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@\S+`,
			Keywords: []string{"://"},
		},
		{
			ID:       "bearer-token",
			Pattern:  `(?i)bearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Keywords: []string{"bearer"},
		},
		{
			ID:       "generic-secret",
			Pattern:  `(?i)(?:api[_-]?key|secret|password|passwd|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords: []string{"key", "secret", "pass", "token"},
		},
	}
}
