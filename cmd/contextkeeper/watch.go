package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
	"github.com/fyrsmithlabs/contextkeeper/internal/watch"
)

var watchPageURL string

func init() {
	watchCmd.Flags().StringVar(&watchPageURL, "url", "", "page URL the file is saved from (required)")
	_ = watchCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Follow a page file and relay messages as they appear",
	Long: `Scan a saved page in full, then re-read it whenever it changes. Each new
version is diffed against the previous one and only inserted elements are
scanned, after the configured debounce.

Examples:
  contextkeeper watch ~/Downloads/chat.html --url https://claude.ai/chat/123`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pageURL, err := resolvePageURL(args[0], watchPageURL)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	p, err := a.pipeline(ctx, a.patternsFor(pageURL.Hostname()))
	if err != nil {
		return err
	}
	session := collector.NewSession(ctx, pageURL, p, a.observerOptions()...)

	w, err := watch.NewFile(args[0], a.logger.Underlying().Named("watch"))
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "watching page",
		zap.String("path", w.Path()),
		zap.String("source", session.Source),
		zap.String("conversation", session.ConversationID),
	)

	runErr := w.Run(ctx, func(ctx context.Context, content []byte) error {
		doc, err := dom.Parse(bytes.NewReader(content), a.parseOptions(pageURL)...)
		if err != nil {
			return fmt.Errorf("parsing page: %w", err)
		}
		applied, err := session.Apply(ctx, doc)
		if err != nil {
			return err
		}
		a.logger.Debug(ctx, "applied page snapshot",
			zap.Bool("full", applied.Full != nil),
			zap.Int("inserted", applied.Inserted),
		)
		return nil
	})

	// keep what was inserted before the interrupt
	if _, err := session.Flush(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn(ctx, "final flush failed", zap.Error(err))
	}
	session.Close()
	return runErr
}
