// Package metrics holds the Prometheus collectors for report runs and the
// lookup server. All collectors live on a custom Registry so a batch run can
// push exactly what it recorded.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry is the custom prometheus registry for the application.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// =============================================================================
// Fetch
// =============================================================================

var ZendeskPagesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "zendesk",
	Name:      "pages_total",
	Help:      "Incremental export pages fetched successfully",
})

var ZendeskRateLimitedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "zendesk",
	Name:      "rate_limited_total",
	Help:      "Responses with status 429 that forced a Retry-After wait",
})

// ZendeskFetchAbortedTotal counts exports cut short by a non-success status
// or by an undecodable page.
// Any increment means the report was built from partial data.
var ZendeskFetchAbortedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zendesk",
	Name:      "fetch_aborted_total",
	Help:      "Exports aborted early by a non-success response or undecodable page, by status code or reason",
}, []string{"status"})

var UnifiedRecords = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "zendesk",
	Name:      "unified_records",
	Help:      "Tickets left after dedup and join in the last fetch",
})

// =============================================================================
// Report
// =============================================================================

var ReportAgents = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "report",
	Name:      "agents",
	Help:      "Agent rows in the last built report",
})

var ReportTeams = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "report",
	Name:      "teams",
	Help:      "Team rows in the last built report",
})

var EmailsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "report",
	Name:      "emails_total",
	Help:      "Report emails handed to the sink, by result",
}, []string{"result"})

var RunDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "report",
	Name:      "run_duration_seconds",
	Help:      "Wall time of a full fetch-build-dispatch run",
	Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
})

var SnapshotRecords = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "snapshot",
	Name:      "records",
	Help:      "Records in the last stored snapshot",
})

// =============================================================================
// Lookup server
// =============================================================================

var GRPCRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "grpc",
	Name:      "requests_total",
	Help:      "gRPC requests by method and status code",
}, []string{"method", "code"})

// Push sends everything on Registry to a Pushgateway under job.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
