package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts pipeline runs.
	// Labels: mode (full, incremental)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextkeeper",
			Subsystem: "collector",
			Name:      "runs_total",
			Help:      "Total number of extraction runs",
		},
		[]string{"mode"},
	)

	// RunDuration tracks how long extraction runs take.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contextkeeper",
			Subsystem: "collector",
			Name:      "run_duration_seconds",
			Help:      "Duration of extraction runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// CandidatesTotal counts candidates found by the matcher.
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextkeeper",
			Subsystem: "collector",
			Name:      "candidates_total",
			Help:      "Total number of message candidates found",
		},
		[]string{"mode"},
	)

	// MessagesTotal counts extracted messages.
	// Labels: role (user, assistant), outcome (new, duplicate)
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextkeeper",
			Subsystem: "collector",
			Name:      "messages_total",
			Help:      "Total number of extracted messages by role and dedup outcome",
		},
		[]string{"role", "outcome"},
	)

	// RoleSource counts how message roles were decided.
	// Labels: source (marker, or a classifier strategy name, parity, heuristic)
	RoleSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextkeeper",
			Subsystem: "collector",
			Name:      "role_source_total",
			Help:      "Total number of role decisions by deciding source",
		},
		[]string{"source"},
	)

	// BoundaryDenied counts boundary crossings the walker had to skip.
	// Labels: kind (shadow, embedded)
	BoundaryDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextkeeper",
			Subsystem: "collector",
			Name:      "boundary_denied_total",
			Help:      "Total number of shadow or embedded boundaries that could not be crossed",
		},
		[]string{"kind"},
	)

	// DedupSize is the number of fingerprints currently held.
	DedupSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "contextkeeper",
			Subsystem: "collector",
			Name:      "dedup_fingerprints",
			Help:      "Number of fingerprints held by the dedup store",
		},
	)

	// DeliveryErrors counts failed saves and relay sends.
	// Labels: stage (save, relay)
	DeliveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextkeeper",
			Subsystem: "collector",
			Name:      "delivery_errors_total",
			Help:      "Total number of failed dedup saves and relay sends",
		},
		[]string{"stage"},
	)
)
