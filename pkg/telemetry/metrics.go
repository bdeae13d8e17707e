package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Mutations ───────────────────────────────────────────────────────────────

	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "tasks",
		Name:      "mutations_total",
		Help:      "Task mutations by operation and outcome (accepted, rejected, conflict, failed).",
	}, []string{"op", "outcome"})

	MutationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskboard",
		Subsystem: "tasks",
		Name:      "mutation_duration_seconds",
		Help:      "Time from request entry to broadcast for task mutations.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"op"})

	// ─── Smart assignment ────────────────────────────────────────────────────────

	SmartAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "assign",
		Name:      "smart_assignments_total",
		Help:      "Smart assignments, labelled by the size of the least-loaded tie set.",
	}, []string{"tie_size"})

	OpenLoad = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskboard",
		Subsystem: "assign",
		Name:      "open_load",
		Help:      "Open (not Done) tasks per user, refreshed periodically.",
	}, []string{"username"})

	RotationIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskboard",
		Subsystem: "assign",
		Name:      "rotation_index",
		Help:      "Current value of the shared smart-assign rotation counter.",
	})

	// ─── Activity log ────────────────────────────────────────────────────────────

	ActivityRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "activity",
		Name:      "recorded_total",
		Help:      "Activity records written, by type.",
	}, []string{"type"})

	ActivityFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "activity",
		Name:      "failures_total",
		Help:      "Activity records that could not be written; the mutation still stands.",
	}, []string{"type"})

	ActivityMissingActor = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "activity",
		Name:      "missing_actor_total",
		Help:      "Activity records written without an acting user.",
	}, []string{"type"})

	// ─── Broadcast ───────────────────────────────────────────────────────────────

	BroadcastPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "broadcast",
		Name:      "published_total",
		Help:      "Events published to the bus.",
	}, []string{"event"})

	BroadcastDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "broadcast",
		Name:      "dropped_total",
		Help:      "Per-subscriber deliveries dropped because the subscriber buffer was full.",
	}, []string{"event"})

	BroadcastSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskboard",
		Subsystem: "broadcast",
		Name:      "subscribers",
		Help:      "Currently connected subscribers (websocket clients and sinks).",
	})

	BroadcastSinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "broadcast",
		Name:      "sink_errors_total",
		Help:      "Events a sink failed to forward.",
	}, []string{"sink"})

	// ─── HTTP ────────────────────────────────────────────────────────────────────

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskboard",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Mutating requests rejected by the per-user rate limiter.",
	})
)
