package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
	"github.com/fyrsmithlabs/contextkeeper/internal/logging"
)

// maxPageBytes bounds pages read from files, stdin or the network.
const maxPageBytes = 32 << 20

var (
	scanPageURL string
	scanDryRun  bool
)

func init() {
	scanCmd.Flags().StringVar(&scanPageURL, "url", "", "page URL the HTML was saved from (default: the source when it is a URL)")
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "print messages without recording or relaying them")
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan <file|url|->",
	Short: "Extract new messages from one page",
	Long: `Run a full scan over one page and relay the messages not seen before.

Examples:
  # A page saved from the browser
  contextkeeper scan chat.html --url https://claude.ai/chat/123

  # From stdin, without side effects
  cat chat.html | contextkeeper scan - --url https://chatgpt.com/c/abc --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pageURL, err := resolvePageURL(args[0], scanPageURL)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{stderr: true, dryRun: scanDryRun})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	content, err := readPage(ctx, args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	doc, err := dom.Parse(strings.NewReader(content), a.parseOptions(pageURL)...)
	if err != nil {
		return fmt.Errorf("parsing page: %w", err)
	}

	p, err := a.pipeline(ctx, a.patternsFor(pageURL.Hostname()))
	if err != nil {
		return err
	}
	source, conv := collector.SourceFor(pageURL)
	res, err := p.FullScan(logging.WithConversation(ctx, source, conv), doc.Root())
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "scan complete",
		zap.String("source", source),
		zap.Int("candidates", res.Candidates),
		zap.Int("messages", len(res.Messages)),
		zap.Bool("delivered", res.Delivered),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// resolvePageURL picks the URL that identifies the conversation. It must be
// absolute with a host.
func resolvePageURL(source, flag string) (*url.URL, error) {
	raw := flag
	if raw == "" {
		if !isRemote(source) {
			return nil, fmt.Errorf("--url is required when reading %q", source)
		}
		raw = source
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid page url %q: missing host", raw)
	}
	return u, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// readPage reads a page from a URL, stdin ("-") or a file.
func readPage(ctx context.Context, source string, stdin io.Reader) (string, error) {
	var r io.Reader
	switch {
	case source == "-":
		r = stdin
	case isRemote(source):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return "", fmt.Errorf("creating request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("fetching %s: %w", source, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("fetching %s: status %d", source, resp.StatusCode)
		}
		r = resp.Body
	default:
		f, err := os.Open(source)
		if err != nil {
			return "", fmt.Errorf("opening page: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxPageBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading page: %w", err)
	}
	if len(data) > maxPageBytes {
		return "", fmt.Errorf("page exceeds %d bytes", maxPageBytes)
	}
	return string(data), nil
}
