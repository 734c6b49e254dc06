package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	mcpserver "github.com/fyrsmithlabs/contextkeeper/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools on stdio",
	Long: `Run an MCP server on stdin/stdout with the tools:

  messages_extract  {url, html, dry_run}  extract new messages from a snapshot
  collector_status  {}                    counters, fingerprints and sessions

Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{stderr: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	p, err := a.pipeline(ctx, a.allPatterns())
	if err != nil {
		return err
	}
	sessions := collector.NewSessions(ctx, p, a.observerOptions()...)

	srv, err := mcpserver.NewServer(&mcpserver.Config{
		Name:     "contextkeeper",
		Version:  version,
		Logger:   a.logger.Underlying().Named("mcp"),
		Resolver: a.resolver(),
	}, sessions, p)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close(context.WithoutCancel(ctx)) }()

	return srv.Run(ctx)
}
