// Package metrics provides Prometheus metrics for the command service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompilesTotal counts compile pipeline runs by operation and terminal stage.
	CompilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatforge",
			Subsystem: "commandd",
			Name:      "compiles_total",
			Help:      "Total number of compile pipeline runs by terminal stage",
		},
		[]string{"op", "stage"}, // op: "create", "update"; stage: "done", "rejected"
	)

	// CompileDuration tracks compile pipeline latency.
	CompileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatforge",
			Subsystem: "commandd",
			Name:      "compile_duration_seconds",
			Help:      "Compile pipeline duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// NameConflictsTotal counts rejected compiles due to name collisions.
	NameConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatforge",
			Subsystem: "commandd",
			Name:      "name_conflicts_total",
			Help:      "Total number of compiles rejected by a name conflict",
		},
	)

	// ReloadPublishesTotal counts reload event publish attempts.
	ReloadPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatforge",
			Subsystem: "commandd",
			Name:      "reload_publishes_total",
			Help:      "Total number of reload event publish attempts",
		},
		[]string{"result"}, // "success", "error"
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatforge",
			Subsystem: "commandd",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatforge",
			Subsystem: "commandd",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SSEActiveConnections tracks open reload-event streams.
	SSEActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatforge",
			Subsystem: "commandd",
			Name:      "sse_active_connections",
			Help:      "Number of open reload-event SSE connections",
		},
	)

	// ReloadEventsStreamed counts events delivered over SSE.
	ReloadEventsStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatforge",
			Subsystem: "commandd",
			Name:      "reload_events_streamed_total",
			Help:      "Total number of reload events delivered over SSE",
		},
	)
)
