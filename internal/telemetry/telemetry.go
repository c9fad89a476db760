// Package telemetry holds the Prometheus collectors shared by the discovery,
// insight, alerting and dashboard components. Collectors register with the
// default registry; `devpulse serve --metrics-addr` exposes them.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsTotal counts discovery sessions by terminal status
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_discovery_sessions_total",
		Help: "Discovery sessions by terminal status",
	}, []string{"status"})

	// MinerDuration tracks per-miner wall time
	MinerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devpulse_miner_duration_seconds",
		Help:    "Pattern miner duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"miner"})

	// PatternsWritten counts pattern rows upserted per family
	PatternsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_patterns_written_total",
		Help: "Pattern rows written by family",
	}, []string{"family"})

	// InsightsGenerated counts synthesized insights by type
	InsightsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_insights_generated_total",
		Help: "Insights synthesized by type",
	}, []string{"type"})

	// InsightsExpired counts insights outdated by the expiry sweep
	InsightsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devpulse_insights_expired_total",
		Help: "Insights marked outdated by the expiry sweep",
	})

	// MetricsClassified counts recorded metrics by change significance
	MetricsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_metrics_classified_total",
		Help: "Metrics classified by change significance",
	}, []string{"significance"})

	// AlertsTotal counts alert outcomes (created, deduplicated, escalated)
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_alerts_total",
		Help: "Alert outcomes by kind and severity",
	}, []string{"outcome", "severity"})

	// DashboardRefreshDuration tracks rollup recomputation time
	DashboardRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "devpulse_dashboard_refresh_duration_seconds",
		Help:    "Dashboard rollup refresh duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	// JobRuns counts scheduler job executions by result
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_scheduler_job_runs_total",
		Help: "Scheduled job runs by job and result",
	}, []string{"job", "result"})
)

// Alert outcome labels.
const (
	OutcomeCreated      = "created"
	OutcomeDeduplicated = "deduplicated"
	OutcomeEscalated    = "escalated"
)

// ObserveSince records the elapsed time since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Result maps an error to a job result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
