package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
)

const instrumentationName = "github.com/fyrsmithlabs/contextkeeper/internal/mcp"

// Metrics records tool calls and what the extract tool produced.
type Metrics struct {
	calls     metric.Int64Counter
	latency   metric.Float64Histogram
	failures  metric.Int64Counter
	inFlight  metric.Int64UpDownCounter
	extracted metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		logger.Warn("failed to create mcp instrument", zap.String("instrument", name), zap.Error(err))
	}

	m := &Metrics{}
	var err error
	if m.calls, err = meter.Int64Counter(
		"contextkeeper.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool calls by tool"),
		metric.WithUnit("{invocation}"),
	); err != nil {
		warn("invocations_total", err)
	}
	if m.latency, err = meter.Float64Histogram(
		"contextkeeper.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call latency by tool"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	); err != nil {
		warn("duration_seconds", err)
	}
	if m.failures, err = meter.Int64Counter(
		"contextkeeper.mcp.tool.errors_total",
		metric.WithDescription("Failed MCP tool calls by tool and reason"),
		metric.WithUnit("{error}"),
	); err != nil {
		warn("errors_total", err)
	}
	if m.inFlight, err = meter.Int64UpDownCounter(
		"contextkeeper.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls in progress"),
		metric.WithUnit("{request}"),
	); err != nil {
		warn("active_requests", err)
	}
	if m.extracted, err = meter.Int64Counter(
		"contextkeeper.mcp.extract.messages_total",
		metric.WithDescription("Messages returned by messages_extract, by scan mode, dry run and outcome (new, duplicate)"),
		metric.WithUnit("{message}"),
	); err != nil {
		warn("extract.messages_total", err)
	}
	return m
}

// begin marks a tool call in flight. The returned func ends it and records
// latency and, when err is set, the failure reason.
func (m *Metrics) begin(ctx context.Context, tool string) func(err error) {
	start := time.Now()
	opt := metric.WithAttributes(attribute.String("tool", tool))
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, opt)
	}
	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, opt)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, opt)
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(start).Seconds(), opt)
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("reason", categorizeError(err)),
			))
		}
	}
}

func (m *Metrics) recordExtract(ctx context.Context, out extractOutput, dryRun bool) {
	if m.extracted == nil {
		return
	}
	for outcome, n := range map[string]int{"new": len(out.Messages), "duplicate": out.Duplicates} {
		if n == 0 {
			continue
		}
		m.extracted.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("mode", out.Mode),
			attribute.Bool("dry_run", dryRun),
			attribute.String("outcome", outcome),
		))
	}
}

// categorizeError maps an error onto a low-cardinality reason label.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, collector.ErrSessionClosed):
		return "session_closed"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid"):
		return "validation_error"
	case strings.Contains(msg, "parsing"):
		return "parse_error"
	default:
		return "internal_error"
	}
}
