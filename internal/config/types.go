package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const redacted = "[REDACTED]"

// Duration is a time.Duration read from text. Besides Go duration strings
// ("200ms", "1m") it accepts a bare integer as milliseconds, so
// CONTEXTKEEPER_COLLECTOR_DEBOUNCE=200 works.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	var parsed time.Duration
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		parsed = time.Duration(ms) * time.Millisecond
	} else if parsed, err = time.ParseDuration(s); err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret holds a credential such as the relay token. It prints and
// marshals as [REDACTED]; Value returns the real text.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return "Secret(" + redacted + ")"
}

func (s Secret) Value() string {
	return string(s)
}

func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText trims surrounding whitespace, which tokens pasted into env
// files often carry.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(strings.TrimSpace(string(text)))
	return nil
}
