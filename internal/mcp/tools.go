package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
	"github.com/fyrsmithlabs/contextkeeper/internal/logging"
)

const (
	toolExtract = "messages_extract"
	toolStatus  = "collector_status"
)

var errEmptyHTML = errors.New("invalid input: html is required")

type extractInput struct {
	URL    string `json:"url" jsonschema:"Page URL; its host and path identify the conversation"`
	HTML   string `json:"html" jsonschema:"Serialized page HTML"`
	DryRun bool   `json:"dry_run,omitempty" jsonschema:"Return what would be extracted without recording or relaying it"`
}

type extractOutput struct {
	Source         string              `json:"source"`
	ConversationID string              `json:"conversation_id"`
	Mode           string              `json:"mode"`
	Candidates     int                 `json:"candidates"`
	Duplicates     int                 `json:"duplicates"`
	Inserted       int                 `json:"inserted"`
	Delivered      bool                `json:"delivered"`
	Messages       []collector.Message `json:"messages"`
}

type statusInput struct{}

type statusOutput struct {
	Runs         int      `json:"runs"`
	Messages     int      `json:"messages"`
	Fingerprints int      `json:"fingerprints"`
	LastRun      string   `json:"last_run,omitempty"`
	LastError    string   `json:"last_error,omitempty"`
	Sessions     []string `json:"sessions"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolExtract,
		Description: "Extract new conversation messages from a chat page snapshot. The first snapshot of a page is scanned in full; later snapshots only yield messages that were added.",
	}, instrumented(s, toolExtract, s.extract))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolStatus,
		Description: "Report extraction counters, stored fingerprints and tracked pages",
	}, instrumented(s, toolStatus, s.status))
}

// instrumented wraps a tool handler with invocation metrics.
func instrumented[In, Out any](s *Server, tool string, h func(context.Context, In) (Out, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		done := s.metrics.begin(ctx, tool)
		out, err := h(ctx, args)
		done(err)
		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", tool), zap.Error(err))
		}
		return nil, out, err
	}
}

func (s *Server) extract(ctx context.Context, args extractInput) (extractOutput, error) {
	if args.HTML == "" {
		return extractOutput{}, errEmptyHTML
	}
	pageURL, err := url.Parse(args.URL)
	if err != nil || pageURL.Host == "" {
		return extractOutput{}, fmt.Errorf("invalid url %q", args.URL)
	}
	doc, err := dom.ParseString(args.HTML, s.parseOptions(pageURL)...)
	if err != nil {
		return extractOutput{}, fmt.Errorf("parsing html: %w", err)
	}

	if args.DryRun {
		source, conv := collector.SourceFor(pageURL)
		res, err := s.pipeline.DryRun().FullScan(logging.WithConversation(ctx, source, conv), doc.Root())
		if err != nil {
			return extractOutput{}, err
		}
		out := outputFor(source, conv, res, 0)
		s.metrics.recordExtract(ctx, out, true)
		return out, nil
	}

	session, err := s.sessions.Get(args.URL)
	if err != nil {
		return extractOutput{}, err
	}
	applied, err := session.Apply(ctx, doc)
	if err != nil {
		return extractOutput{}, err
	}
	res := applied.Full
	if res == nil {
		// callers wait for the answer, so skip the debounce
		if res, err = session.Flush(ctx); err != nil {
			return extractOutput{}, err
		}
		if res.RunID == "" {
			res.Mode = collector.ModeIncremental
		}
	}
	out := outputFor(session.Source, session.ConversationID, res, applied.Inserted)
	s.metrics.recordExtract(ctx, out, false)
	return out, nil
}

func (s *Server) parseOptions(u *url.URL) []dom.Option {
	opts := []dom.Option{dom.WithBaseURL(u)}
	if s.resolver != nil {
		opts = append(opts, dom.WithResolver(s.resolver))
	}
	return opts
}

func outputFor(source, conv string, res *collector.Result, inserted int) extractOutput {
	msgs := res.Messages
	if msgs == nil {
		msgs = []collector.Message{}
	}
	return extractOutput{
		Source:         source,
		ConversationID: conv,
		Mode:           string(res.Mode),
		Candidates:     res.Candidates,
		Duplicates:     res.Duplicates,
		Inserted:       inserted,
		Delivered:      res.Delivered,
		Messages:       msgs,
	}
}

func (s *Server) status(context.Context, statusInput) (statusOutput, error) {
	st := s.pipeline.Status()
	out := statusOutput{
		Runs:         st.Runs,
		Messages:     st.Messages,
		Fingerprints: st.Fingerprints,
		LastError:    st.LastError,
		Sessions:     s.sessions.Keys(),
	}
	if !st.LastRun.IsZero() {
		out.LastRun = st.LastRun.UTC().Format(time.RFC3339)
	}
	if out.Sessions == nil {
		out.Sessions = []string{}
	}
	return out, nil
}
