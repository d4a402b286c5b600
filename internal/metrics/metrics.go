// Package metrics defines Prometheus metrics for doctrail.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doctrail_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctrail_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctrail_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	HistoryRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctrail_history_records_total",
			Help: "History records committed, by action",
		},
		[]string{"action"},
	)

	HistorySkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctrail_history_skipped_total",
			Help: "Lifecycle events that produced no history record, by reason",
		},
		[]string{"reason"},
	)

	ReplayTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctrail_replay_total",
			Help: "Undo and redo operations applied",
		},
		[]string{"direction", "action"},
	)

	ConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doctrail_conflicts_total",
			Help: "Commits rejected by the optimistic revision check",
		},
	)

	FeedQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "doctrail_feed_queue_depth",
			Help: "Current change feed queue depth",
		},
	)

	FeedPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctrail_feed_published_total",
			Help: "Change feed deliveries, by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "doctrail_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)

	WSReplayEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctrail_websocket_replay_evicted_total",
			Help: "Events dropped from the reconnect replay buffer, by reason",
		},
		[]string{"reason"},
	)

	PurgedRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "doctrail_history_purged_total",
			Help: "History records removed by retention purges",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		HistoryRecordsTotal, HistorySkippedTotal, ReplayTotal, ConflictsTotal,
		FeedQueueDepth, FeedPublishedTotal, WSConnections, WSReplayEvictedTotal, PurgedRecordsTotal,
	)
}
