package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/BurntSushi/toml"
)

// LoadAllowlist reads content regexes from a gitleaks-style TOML file:
//
//	[allowlist]
//	regexes = ['''example-token-\w+''']
//
// A missing file yields an empty allowlist.
func LoadAllowlist(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	var doc struct {
		Allowlist struct {
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing allowlist %s: %w", path, err)
	}
	for _, pattern := range doc.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("allowlist %s: invalid pattern %q: %w", path, pattern, err)
		}
	}
	return doc.Allowlist.Regexes, nil
}

// FromSettings builds a scrubber for the given engine and allowlist file.
func FromSettings(engine, allowlistPath string) (Scrubber, error) {
	allow, err := LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Engine = engine
	cfg.Allowlist = allow
	return New(cfg)
}
