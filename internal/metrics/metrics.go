// Package metrics holds the Prometheus collectors of the notebook.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"labtree/internal/report"
)

const namespace = "labtree"

var (
	Registry = prometheus.NewRegistry()

	// Runs counts finished scans and checks by operation and mode.
	Runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Finished scans and checks.",
	}, []string{"operation", "mode"})

	// Outcomes counts per-path results.
	Outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "path_outcomes_total",
		Help:      "Per-path results of scans and checks.",
	}, []string{"operation", "outcome"})

	// Faults counts findings by kind and severity.
	Faults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "faults_total",
		Help:      "Faults found by scans and checks.",
	}, []string{"operation", "kind", "severity"})

	// Duration observes the wall time of scans and checks.
	Duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of scans and checks.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"operation"})

	// Busy counts scan requests rejected because the root was already being scanned.
	Busy = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_rejected_total",
		Help:      "Scan requests rejected because a scan of the same root was running.",
	})
)

func init() {
	Registry.MustRegister(
		Runs,
		Outcomes,
		Faults,
		Duration,
		Busy,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Observe records a finished report under operation ("scan" or "check").
func Observe(operation, mode string, rep *report.Report, seconds float64) {
	Runs.WithLabelValues(operation, mode).Inc()
	Duration.WithLabelValues(operation).Observe(seconds)
	if rep == nil {
		return
	}
	for outcome, n := range rep.Outcomes() {
		Outcomes.WithLabelValues(operation, string(outcome)).Add(float64(n))
	}
	for _, f := range rep.Faults {
		Faults.WithLabelValues(operation, string(f.Kind), f.Severity.String()).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
