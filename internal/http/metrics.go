package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/contextkeeper/internal/http"

// Snapshot kinds recorded on the snapshot counter.
const (
	snapshotFull        = "full"
	snapshotIncremental = "incremental"
	snapshotRejected    = "rejected"
)

// HTTPMetrics records request and snapshot instruments. A nil instrument
// is skipped, so a meter that fails to create one degrades to fewer series.
type HTTPMetrics struct {
	logger *zap.Logger

	requests      metric.Int64Counter
	latency       metric.Float64Histogram
	inFlight      metric.Int64UpDownCounter
	snapshots     metric.Int64Counter
	snapshotBytes metric.Int64Histogram
	insertedNodes metric.Int64Histogram
}

// NewHTTPMetrics creates instruments on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{logger: logger}

	var err error
	if m.requests, err = meter.Int64Counter(
		"contextkeeper.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status"),
		metric.WithUnit("{request}"),
	); err != nil {
		m.warn("requests_total", err)
	}
	if m.latency, err = meter.Float64Histogram(
		"contextkeeper.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	); err != nil {
		m.warn("request_duration_seconds", err)
	}
	if m.inFlight, err = meter.Int64UpDownCounter(
		"contextkeeper.http.active_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		m.warn("active_requests", err)
	}
	if m.snapshots, err = meter.Int64Counter(
		"contextkeeper.http.snapshots_total",
		metric.WithDescription("Page snapshots received, by kind (full, incremental, rejected)"),
		metric.WithUnit("{snapshot}"),
	); err != nil {
		m.warn("snapshots_total", err)
	}
	// Snapshot pages run from a few KB to several MB.
	if m.snapshotBytes, err = meter.Int64Histogram(
		"contextkeeper.http.snapshot_size_bytes",
		metric.WithDescription("Size of the html field of accepted snapshots"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1<<10, 16<<10, 64<<10, 256<<10, 1<<20, 4<<20, 8<<20),
	); err != nil {
		m.warn("snapshot_size_bytes", err)
	}
	if m.insertedNodes, err = meter.Int64Histogram(
		"contextkeeper.http.snapshot_inserted_nodes",
		metric.WithDescription("Inserted subtrees found by diffing a snapshot against the previous one"),
		metric.WithUnit("{node}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25, 100),
	); err != nil {
		m.warn("snapshot_inserted_nodes", err)
	}
	return m
}

func (m *HTTPMetrics) warn(name string, err error) {
	m.logger.Warn("failed to create http instrument", zap.String("instrument", name), zap.Error(err))
}

// MetricsMiddleware records one request sample per handled request, labeled
// by the matched route rather than the raw path.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			opt := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.Int("status", c.Response().Status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, opt)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), opt)
			}
			return err
		}
	}
}

// recordSnapshot counts an ingested snapshot. size and inserted are only
// recorded for accepted snapshots; inserted only for incremental ones.
func (m *HTTPMetrics) recordSnapshot(ctx context.Context, kind string, size, inserted int) {
	if m == nil {
		return
	}
	if m.snapshots != nil {
		m.snapshots.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
	if kind == snapshotRejected {
		return
	}
	if m.snapshotBytes != nil {
		m.snapshotBytes.Record(ctx, int64(size))
	}
	if kind == snapshotIncremental && m.insertedNodes != nil {
		m.insertedNodes.Record(ctx, int64(inserted))
	}
}

// normalizePath returns the route template so unmatched paths share one
// series.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
