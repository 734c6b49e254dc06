package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
)

// Server is an MCP server backed by a collector pipeline.
type Server struct {
	mcp      *mcp.Server
	sessions *collector.Sessions
	pipeline *collector.Pipeline
	resolver dom.FrameResolver
	metrics  *Metrics
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "contextkeeper")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger must write to stderr; stdout carries the protocol.
	Logger *zap.Logger

	// Resolver, when set, loads same-origin frames referenced by src.
	Resolver dom.FrameResolver
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "contextkeeper",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg *Config, sessions *collector.Sessions, pipeline *collector.Pipeline) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if sessions == nil {
		return nil, fmt.Errorf("sessions are required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		sessions: sessions,
		pipeline: pipeline,
		resolver: cfg.Resolver,
		metrics:  NewMetrics(cfg.Logger),
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP on the stdio transport until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Close flushes and closes every session.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("closing MCP server")
	return s.sessions.Close(ctx)
}
