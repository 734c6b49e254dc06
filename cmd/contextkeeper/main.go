// Contextkeeper extracts conversation messages from chat pages and relays
// new ones to a context store.
//
// Usage:
//
//	# One-off extraction from a saved page
//	contextkeeper scan page.html --url https://claude.ai/chat/123
//
//	# Follow a page saved repeatedly by a browser extension
//	contextkeeper watch page.html --url https://claude.ai/chat/123
//
//	# Accept snapshots over HTTP
//	contextkeeper serve
//
//	# Serve MCP tools on stdio
//	contextkeeper mcp
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "contextkeeper",
	Short: "Extract and relay conversation messages from chat pages",
	Long: `contextkeeper finds conversation messages in chat page HTML, attributes
each to the user or the assistant, drops ones it has already seen and relays
the rest to a context API or NATS.

Configuration is read from ~/.config/contextkeeper/config.yaml and
CONTEXTKEEPER_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/contextkeeper/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
