package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInvalidProfiles indicates a site profile file could not be decoded.
var ErrInvalidProfiles = errors.New("invalid site profiles")

// SiteProfile overrides message patterns for pages served from Host.
type SiteProfile struct {
	Host     string   `toml:"host"`
	Patterns []string `toml:"patterns"`
}

// SiteProfiles is an ordered list of per-host overrides.
type SiteProfiles struct {
	Sites []SiteProfile `toml:"site"`
}

// LoadSiteProfiles decodes a TOML file of the form
//
//	[[site]]
//	host = "chatgpt.com"
//	patterns = ["div[data-message-author-role]"]
//
// A missing file yields an empty set.
func LoadSiteProfiles(path string) (*SiteProfiles, error) {
	profiles := &SiteProfiles{}
	if path == "" {
		return profiles, nil
	}
	path, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return profiles, nil
	}

	if _, err := toml.DecodeFile(path, profiles); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfiles, path, err)
	}
	for i, site := range profiles.Sites {
		if site.Host == "" {
			return nil, fmt.Errorf("%w: site %d has no host", ErrInvalidProfiles, i)
		}
		if len(site.Patterns) == 0 {
			return nil, fmt.Errorf("%w: site %q has no patterns", ErrInvalidProfiles, site.Host)
		}
	}
	return profiles, nil
}

// PatternsFor returns the patterns of the first profile whose host is a
// suffix of host, or fallback when none match.
func (p *SiteProfiles) PatternsFor(host string, fallback []string) []string {
	if p == nil {
		return fallback
	}
	host = strings.ToLower(host)
	for _, site := range p.Sites {
		h := strings.ToLower(site.Host)
		if host == h || strings.HasSuffix(host, "."+h) {
			return site.Patterns
		}
	}
	return fallback
}
