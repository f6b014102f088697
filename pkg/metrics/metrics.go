package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are package globals registered on the default registry through
// promauto. The pipeline runs one evaluator per process.

var (
	// HttpRequestsTotal counts debug server requests by method, path and status.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrpq_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamrpq_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "path"},
	)

	// EdgesTotal counts stream records by outcome: admitted, shed, filtered
	// or out_of_order.
	EdgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrpq_edges_total",
			Help: "Total number of stream records by outcome",
		},
		[]string{"outcome"},
	)

	// EdgeDuration measures insert, match and eviction of one admitted edge.
	EdgeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamrpq_edge_duration_seconds",
			Help:    "Time spent processing one admitted edge",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
	)

	MatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamrpq_matches_total",
			Help: "Total number of paths reported to the sink",
		},
	)

	// EvictedEdgesTotal counts edges leaving windows, by action: deleted or
	// migrated.
	EvictedEdgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamrpq_evicted_edges_total",
			Help: "Total number of edges processed at eviction by action",
		},
		[]string{"action"},
	)

	WindowsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamrpq_windows_evicted_total",
			Help: "Total number of evicted windows",
		},
	)

	WindowSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamrpq_window_size",
			Help: "Size of the windows being created",
		},
	)

	ForestNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamrpq_forest_nodes",
			Help: "Number of nodes in the spanning forest",
		},
	)

	GraphEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamrpq_graph_edges",
			Help: "Number of live edges in the streaming graph",
		},
	)

	SinkResults = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamrpq_sink_results",
			Help: "Number of distinct results currently in the sink",
		},
	)

	// NormalizedCost is the smoothed normalized cost of the last evaluation.
	NormalizedCost = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamrpq_normalized_cost",
			Help: "Smoothed normalized window cost",
		},
	)

	ShedProbability = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamrpq_shed_probability",
			Help: "Current load shedding probability",
		},
	)
)

// Outcome and action label values.
const (
	OutcomeAdmitted   = "admitted"
	OutcomeShed       = "shed"
	OutcomeFiltered   = "filtered"
	OutcomeOutOfOrder = "out_of_order"

	ActionDeleted  = "deleted"
	ActionMigrated = "migrated"
)
