// Package secrets redacts credentials from message text before it leaves
// the process.
//
// Two engines are available. The regex engine applies a short list of
// patterns for tokens that commonly get pasted into chats. The gitleaks
// engine runs the full gitleaks rule set and is slower. Both honour an
// allowlist of content regexes that may be loaded from a gitleaks-style
// TOML file.
package secrets
