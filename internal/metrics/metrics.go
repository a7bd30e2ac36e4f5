package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatusQueries tracks status queries by outcome (irreversible, pending, not_found, error)
	StatusQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finality_status_queries_total",
			Help: "Total number of transaction status queries",
		},
		[]string{"result"},
	)

	// StatusQueryLatency tracks status query latency
	StatusQueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finality_status_query_latency_seconds",
			Help:    "Transaction status query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// NotFoundRetries counts retries consumed by not-found failures
	NotFoundRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finality_not_found_retries_total",
			Help: "Total number of retries caused by not-found status queries",
		},
	)

	// SessionsStarted counts sessions created by the after-broadcast hook
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finality_sessions_started_total",
			Help: "Total number of finality wait sessions started",
		},
	)

	// SessionsResolved counts sessions by terminal state
	SessionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finality_sessions_resolved_total",
			Help: "Total number of finality wait sessions by terminal state",
		},
		[]string{"state"},
	)

	// SessionsActive tracks sessions that have not reached a terminal state
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "finality_sessions_active",
			Help: "Number of finality wait sessions in progress",
		},
	)

	// TimeToFinality tracks broadcast-to-irreversible time
	TimeToFinality = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finality_time_to_irreversible_seconds",
			Help:    "Time from broadcast hook to irreversible status in seconds",
			Buckets: []float64{30, 60, 120, 150, 180, 240, 300, 600, 1200},
		},
	)

	// PromptsShown counts prompts handed to a surface by kind
	PromptsShown = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finality_prompts_shown_total",
			Help: "Total number of prompts shown",
		},
		[]string{"kind"},
	)

	// NodeRequests tracks HTTP requests to the chain node
	NodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finality_node_requests_total",
			Help: "Total number of HTTP requests sent to the chain node",
		},
		[]string{"node", "code"},
	)

	// DBConnectionPoolUsage tracks database connection pool usage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "finality_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)

	// HTTPRequests tracks API requests by route and status code
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finality_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "code"},
	)
)
