// Package metrics defines the Prometheus metrics exported by chatsync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Ingestion metrics
	IngestedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_ingested_records_total",
			Help: "Ingested payload records by outcome",
		},
		[]string{"outcome"}, // inserted, duplicate, status_updated, status_not_found, malformed, failed
	)

	IngestionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_ingestion_runs_total",
			Help: "Ingestion batch runs by result",
		},
		[]string{"result"}, // ok, unavailable
	)

	// Change feed metrics
	FeedChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_feed_changes_total",
			Help: "Changes observed on the change feed",
		},
		[]string{"op"},
	)

	FeedObservationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_feed_observation_errors_total",
			Help: "Per-event change feed errors",
		},
	)

	FeedReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_feed_reconnects_total",
			Help: "Change feed resubscriptions after a lost stream",
		},
	)

	// Push metrics
	EventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_events_broadcast_total",
			Help: "Push events broadcast to connected sessions",
		},
		[]string{"event"},
	)

	SessionsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_sessions_connected",
			Help: "Currently connected push sessions",
		},
	)

	SessionsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_sessions_dropped_total",
			Help: "Push sessions dropped because their send buffer was full",
		},
	)
)
