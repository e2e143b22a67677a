package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors. HTTP traffic is instrumented separately by
// middleware.Metrics.
var (
	// SchedulerRuns counts completed scheduler runs by outcome (ok|aborted).
	SchedulerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Total number of scheduler runs.",
		},
		[]string{"outcome"},
	)

	// SchedulerItems counts due posts processed by result (published|failed).
	SchedulerItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_items_total",
			Help: "Posts processed by the scheduler, by result.",
		},
		[]string{"result"},
	)

	// MetricsRefreshItems counts refresher candidates by result
	// (refreshed|failed|skipped).
	MetricsRefreshItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_refresh_items_total",
			Help: "Posts handled by the metrics refresher, by result.",
		},
		[]string{"result"},
	)

	// PublisherRequests counts outbound X API calls by operation and outcome.
	PublisherRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_requests_total",
			Help: "Outbound X API requests, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// RateLimitRemaining gauges the metrics-read budget left in the window.
	RateLimitRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metrics_ratelimit_remaining",
			Help: "Remaining metrics-read requests in the current window.",
		},
	)
)

func init() {
	prometheus.MustRegister(SchedulerRuns, SchedulerItems, MetricsRefreshItems, PublisherRequests, RateLimitRemaining)
}
