package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDomainCollectors_Registered(t *testing.T) {
	for name, c := range map[string]prometheus.Collector{
		"scheduler_runs_total":        SchedulerRuns,
		"scheduler_items_total":       SchedulerItems,
		"metrics_refresh_items_total": MetricsRefreshItems,
		"publisher_requests_total":    PublisherRequests,
		"metrics_ratelimit_remaining": RateLimitRemaining,
	} {
		if err := prometheus.Register(c); err == nil {
			t.Fatalf("%s was not registered by init", name)
		}
	}
}

func TestDomainCollectors_Count(t *testing.T) {
	base := testutil.ToFloat64(SchedulerItems.WithLabelValues("published"))
	SchedulerItems.WithLabelValues("published").Inc()
	if got := testutil.ToFloat64(SchedulerItems.WithLabelValues("published")); got != base+1 {
		t.Fatalf("expected %v, got %v", base+1, got)
	}

	RateLimitRemaining.Set(7)
	if got := testutil.ToFloat64(RateLimitRemaining); got != 7 {
		t.Fatalf("expected gauge 7, got %v", got)
	}
}
