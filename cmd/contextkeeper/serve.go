package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	httpserver "github.com/fyrsmithlabs/contextkeeper/internal/http"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept page snapshots over HTTP",
	Long: `Start the HTTP API. Clients POST page snapshots to /api/v1/snapshots;
the first snapshot of a conversation is scanned in full and later ones only
for inserted elements.

Endpoints:
  POST /api/v1/snapshots  {"url": "...", "html": "...", "flush": false}
  GET  /api/v1/status
  GET  /health
  GET  /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	p, err := a.pipeline(ctx, a.allPatterns())
	if err != nil {
		return err
	}
	sessions := collector.NewSessions(ctx, p, a.observerOptions()...)

	srv, err := httpserver.NewServer(sessions, p, a.logger.Underlying().Named("http"), &httpserver.Config{
		Host:     a.cfg.Server.Host,
		Port:     a.cfg.Server.Port,
		Version:  version,
		Resolver: a.resolver(),
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn(ctx, "http shutdown", zap.Error(err))
	}
	return sessions.Close(shutdownCtx)
}
