// Package http provides the snapshot ingest API for contextkeeper.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/dom"
)

// MaxSnapshotBytes bounds the request body of POST /api/v1/snapshots.
const MaxSnapshotBytes = 8 << 20

// Server provides HTTP endpoints for contextkeeper.
type Server struct {
	echo     *echo.Echo
	sessions *collector.Sessions
	pipeline *collector.Pipeline
	resolver dom.FrameResolver
	validate *validator.Validate
	metrics  *HTTPMetrics
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
	// Resolver, when set, loads same-origin frames referenced by src.
	Resolver dom.FrameResolver
}

// NewServer creates a new HTTP server feeding snapshots into sessions.
func NewServer(sessions *collector.Sessions, pipeline *collector.Pipeline, logger *zap.Logger, cfg *Config) (*Server, error) {
	if sessions == nil || pipeline == nil {
		return nil, fmt.Errorf("sessions and pipeline are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", MaxSnapshotBytes)))
	metrics := NewHTTPMetrics(logger)
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		sessions: sessions,
		pipeline: pipeline,
		resolver: cfg.Resolver,
		validate: newValidator(),
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()

	return s, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/snapshots", s.handleSnapshot)
	v1.GET("/status", s.handleStatus)
}

// Echo exposes the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSnapshot applies a page snapshot to the session for its URL.
func (s *Server) handleSnapshot(c echo.Context) error {
	var req SnapshotRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid snapshot request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}

	session, err := s.sessions.Get(req.URL)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// already validated by sessions.Get
	pageURL, _ := url.Parse(req.URL)

	opts := []dom.Option{dom.WithBaseURL(pageURL)}
	if s.resolver != nil {
		opts = append(opts, dom.WithResolver(s.resolver))
	}
	ctx := c.Request().Context()
	doc, err := dom.ParseString(req.HTML, opts...)
	if err != nil {
		s.metrics.recordSnapshot(ctx, snapshotRejected, 0, 0)
		s.logger.Warn("unparseable snapshot", zap.String("source", session.Source), zap.Error(err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "html could not be parsed")
	}

	applied, err := session.Apply(ctx, doc)
	if err != nil {
		return s.applyError(err)
	}
	kind := snapshotIncremental
	if applied.Full != nil {
		kind = snapshotFull
	}
	s.metrics.recordSnapshot(ctx, kind, len(req.HTML), applied.Inserted)

	resp := SnapshotResponse{
		Source:         session.Source,
		ConversationID: session.ConversationID,
		Full:           applied.Full,
		Inserted:       applied.Inserted,
	}
	if req.Flush && applied.Inserted > 0 {
		res, err := session.Flush(ctx)
		if err != nil {
			return s.applyError(err)
		}
		resp.Flushed = res
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) applyError(err error) error {
	switch {
	case errors.Is(err, collector.ErrSessionClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("snapshot scan failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "scan failed")
	}
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:    "ok",
		Version:   s.config.Version,
		Collector: s.pipeline.Status(),
		Sessions:  s.sessions.Keys(),
	})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
