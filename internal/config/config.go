// Package config provides configuration loading for contextkeeper.
//
// Configuration is assembled from defaults, an optional YAML file and
// CONTEXTKEEPER_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Store drivers.
const (
	StoreFile   = "file"
	StoreNATS   = "nats"
	StoreMemory = "memory"
)

// Relay sinks.
const (
	SinkHTTP = "http"
	SinkNATS = "nats"
)

// Scrub engines.
const (
	ScrubRegex    = "regex"
	ScrubGitleaks = "gitleaks"
	ScrubOff      = "off"
)

// DefaultPatterns are the structural patterns tried in order when locating
// chat messages on a page.
var DefaultPatterns = []string{
	`[data-message-author-role]`,
	`div[data-testid="message"]`,
	`div[role="listitem"]`,
	`.message`,
	`.chat-message`,
	`.Message`,
}

// Config holds the complete contextkeeper configuration.
type Config struct {
	Collector CollectorConfig `koanf:"collector"`
	Store     StoreConfig     `koanf:"store"`
	Relay     RelayConfig     `koanf:"relay"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// CollectorConfig tunes message discovery and deduplication.
type CollectorConfig struct {
	Patterns      []string `koanf:"patterns"`
	Debounce      Duration `koanf:"debounce"`
	DedupCapacity int      `koanf:"dedup_capacity"`
	StorageKey    string   `koanf:"storage_key"`
	// SiteProfiles is an optional TOML file with per-host pattern overrides.
	SiteProfiles string `koanf:"site_profiles"`
	// FrameFetch allows same-origin iframes referenced by src to be fetched.
	FrameFetch   bool     `koanf:"frame_fetch"`
	FrameTimeout Duration `koanf:"frame_timeout"`
}

// StoreConfig selects where fingerprints are persisted.
type StoreConfig struct {
	Driver  string `koanf:"driver"`
	Dir     string `koanf:"dir"`
	NATSURL string `koanf:"nats_url"`
	Bucket  string `koanf:"bucket"`
}

// RelayConfig configures delivery of extracted messages.
type RelayConfig struct {
	Sinks       []string `koanf:"sinks"`
	BaseURL     string   `koanf:"base_url"`
	Token       Secret   `koanf:"token"`
	ProfileID   string   `koanf:"profile_id"`
	RateLimit   float64  `koanf:"rate_limit"`
	Burst       int      `koanf:"burst"`
	Timeout     Duration `koanf:"timeout"`
	NATSURL     string   `koanf:"nats_url"`
	NATSSubject string   `koanf:"nats_subject"`
	Scrub       string   `koanf:"scrub"`
	Allowlist   string   `koanf:"allowlist"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Protocol   string  `koanf:"protocol"`
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	c := &cfg.Collector
	if len(c.Patterns) == 0 {
		c.Patterns = append([]string(nil), DefaultPatterns...)
	}
	if c.Debounce == 0 {
		c.Debounce = Duration(200 * time.Millisecond)
	}
	if c.DedupCapacity == 0 {
		c.DedupCapacity = 500
	}
	if c.StorageKey == "" {
		c.StorageKey = "context_collector_hashes_v1"
	}
	if c.FrameTimeout == 0 {
		c.FrameTimeout = Duration(5 * time.Second)
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreFile
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "~/.local/state/contextkeeper"
	}
	if cfg.Store.NATSURL == "" {
		cfg.Store.NATSURL = "nats://127.0.0.1:4222"
	}
	if cfg.Store.Bucket == "" {
		cfg.Store.Bucket = "contextkeeper"
	}

	r := &cfg.Relay
	if len(r.Sinks) == 0 {
		r.Sinks = []string{SinkHTTP}
	}
	if r.BaseURL == "" {
		r.BaseURL = "http://[::1]:4002"
	}
	if r.RateLimit == 0 {
		r.RateLimit = 20
	}
	if r.Burst == 0 {
		r.Burst = 5
	}
	if r.Timeout == 0 {
		r.Timeout = Duration(10 * time.Second)
	}
	if r.NATSURL == "" {
		r.NATSURL = cfg.Store.NATSURL
	}
	if r.NATSSubject == "" {
		r.NATSSubject = "contextkeeper.messages"
	}
	if r.Scrub == "" {
		r.Scrub = ScrubRegex
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4010
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Collector.Patterns) == 0 {
		return errors.New("collector.patterns must not be empty")
	}
	if c.Collector.Debounce.Duration() <= 0 {
		return errors.New("collector.debounce must be positive")
	}
	if c.Collector.DedupCapacity < 1 {
		return fmt.Errorf("collector.dedup_capacity must be >= 1, got %d", c.Collector.DedupCapacity)
	}
	if c.Collector.StorageKey == "" {
		return errors.New("collector.storage_key is required")
	}

	switch c.Store.Driver {
	case StoreFile, StoreNATS, StoreMemory:
	default:
		return fmt.Errorf("store.driver must be one of file, nats, memory; got %q", c.Store.Driver)
	}

	for _, sink := range c.Relay.Sinks {
		switch sink {
		case SinkHTTP:
			u, err := url.Parse(c.Relay.BaseURL)
			if err != nil {
				return fmt.Errorf("relay.base_url: %w", err)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("relay.base_url must be http or https, got %q", c.Relay.BaseURL)
			}
		case SinkNATS:
			if c.Relay.NATSSubject == "" {
				return errors.New("relay.nats_subject is required for the nats sink")
			}
		default:
			return fmt.Errorf("unknown relay sink %q", sink)
		}
	}
	if c.Relay.RateLimit < 0 {
		return errors.New("relay.rate_limit must not be negative")
	}

	switch c.Relay.Scrub {
	case ScrubRegex, ScrubGitleaks, ScrubOff:
	default:
		return fmt.Errorf("relay.scrub must be one of regex, gitleaks, off; got %q", c.Relay.Scrub)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}
	return nil
}
