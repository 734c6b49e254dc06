package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/config"
	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
	"github.com/fyrsmithlabs/contextkeeper/internal/logging"
	"github.com/fyrsmithlabs/contextkeeper/internal/relay"
	"github.com/fyrsmithlabs/contextkeeper/internal/store"
	"github.com/fyrsmithlabs/contextkeeper/internal/telemetry"
)

type appOptions struct {
	// stderr sends logs to stderr when stdout carries results or a protocol.
	stderr bool
	// dryRun keeps fingerprints in memory and relays nothing.
	dryRun bool
}

// app holds the dependencies shared by every command.
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	tel        *telemetry.Telemetry
	store      store.Store
	relay      collector.Relay
	closeRelay relay.Closer
	profiles   *config.SiteProfiles
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if opts.stderr {
		logCfg.Output.Stdout = false
		logCfg.Output.Stderr = true
	}
	logCfg.Output.OTEL = tel.IsEnabled()
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	if degraded, why := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Error(why))
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		tel:        tel,
		relay:      relay.Discard{},
		closeRelay: func() error { return nil },
	}

	a.profiles, err = config.LoadSiteProfiles(cfg.Collector.SiteProfiles)
	if err != nil {
		return nil, a.abort(ctx, err)
	}

	storeCfg := cfg.Store
	if opts.dryRun {
		storeCfg.Driver = config.StoreMemory
	}
	a.store, err = store.Open(ctx, storeCfg, logger.Underlying().Named("store"))
	if err != nil {
		return nil, a.abort(ctx, fmt.Errorf("opening store: %w", err))
	}

	if !opts.dryRun {
		a.relay, a.closeRelay, err = relay.FromConfig(ctx, cfg.Relay, logger.Underlying().Named("relay"))
		if err != nil {
			return nil, a.abort(ctx, fmt.Errorf("configuring relay: %w", err))
		}
	}
	return a, nil
}

// abort releases what newApp opened so far.
func (a *app) abort(ctx context.Context, err error) error {
	return errors.Join(err, a.Close(ctx))
}

// pipeline builds a pipeline over patterns and restores its fingerprints.
func (a *app) pipeline(ctx context.Context, patterns []string) (*collector.Pipeline, error) {
	compiled, err := dom.CompileAll(patterns)
	if err != nil {
		return nil, fmt.Errorf("compiling message patterns: %w", err)
	}
	c := a.cfg.Collector
	p := collector.NewPipeline(
		collector.NewMatcher(compiled, collector.NewWalker(a.logger.Named("walker"))),
		collector.NewDedup(a.store, c.StorageKey, c.DedupCapacity),
		collector.WithRelay(a.relay),
		collector.WithLogger(a.logger.Named("collector")),
		collector.WithTracerProvider(a.tel.TracerProvider()),
	)
	if err := p.LoadState(ctx); err != nil {
		// start empty; the next save overwrites the bad state
		a.logger.Warn(ctx, "failed to restore fingerprints", zap.Error(err))
	}
	return p, nil
}

// patternsFor returns the site profile patterns for host, or the
// configured defaults.
func (a *app) patternsFor(host string) []string {
	return a.profiles.PatternsFor(host, a.cfg.Collector.Patterns)
}

// allPatterns is used when one pipeline serves many hosts: every profile's
// patterns are tried before the defaults.
func (a *app) allPatterns() []string {
	var out []string
	if a.profiles != nil {
		for _, site := range a.profiles.Sites {
			out = append(out, site.Patterns...)
		}
	}
	out = append(out, a.cfg.Collector.Patterns...)

	seen := make(map[string]bool, len(out))
	return slices.DeleteFunc(out, func(p string) bool {
		dup := seen[p]
		seen[p] = true
		return dup
	})
}

func (a *app) resolver() dom.FrameResolver {
	if !a.cfg.Collector.FrameFetch {
		return nil
	}
	return dom.NewHTTPResolver(nil, a.cfg.Collector.FrameTimeout.Duration())
}

func (a *app) parseOptions(pageURL *url.URL) []dom.Option {
	opts := []dom.Option{dom.WithBaseURL(pageURL)}
	if r := a.resolver(); r != nil {
		opts = append(opts, dom.WithResolver(r))
	}
	return opts
}

func (a *app) observerOptions() []collector.ObserverOption {
	return []collector.ObserverOption{collector.WithDebounce(a.cfg.Collector.Debounce.Duration())}
}

// Close releases the relay, store and telemetry providers.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.closeRelay != nil {
		errs = append(errs, a.closeRelay())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.tel.Shutdown(ctx))
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
