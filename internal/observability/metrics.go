// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Optimization run metrics
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	StrategiesChosen prometheus.Counter
	AllocationCount  prometheus.Histogram

	// Solver metrics
	SolverCallLatency  *prometheus.HistogramVec
	SolverDivergences  prometheus.Counter
	MalformedResponses prometheus.Counter
	BudgetViolations   prometheus.Counter

	// Network subgraph metrics
	NetworkQueryLatency *prometheus.HistogramVec
	NetworkQueryErrors  *prometheus.CounterVec
	CurrentEpoch        prometheus.Gauge
	EpochsObserved      prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Reporting metrics
	ReportsGenerated *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "graph_allocopt"
	}

	return &Metrics{
		// Optimization run metrics
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total number of optimization runs by mode and status",
		}, []string{"mode", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "End-to-end optimization run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		StrategiesChosen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "strategies_chosen_total",
			Help:      "Total number of strategies selected for execution",
		}),
		AllocationCount: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "allocation_count",
			Help:      "Number of nonzero allocations in chosen strategies",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),

		// Solver metrics
		SolverCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "call_latency_seconds",
			Help:      "Solver engine call latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"mode"}),
		SolverDivergences: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "divergences_total",
			Help:      "Total number of solver runs that failed to converge",
		}),
		MalformedResponses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "malformed_responses_total",
			Help:      "Total number of structurally invalid solver responses",
		}),
		BudgetViolations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "budget_violations_total",
			Help:      "Total number of solver results rejected for exceeding available stake",
		}),

		// Network subgraph metrics
		NetworkQueryLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "query_latency_seconds",
			Help:      "Network subgraph query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		NetworkQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "query_errors_total",
			Help:      "Total number of network subgraph query errors",
		}, []string{"operation"}),
		CurrentEpoch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "current_epoch",
			Help:      "Latest protocol epoch observed",
		}),
		EpochsObserved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "epochs_observed_total",
			Help:      "Total number of epoch transitions observed",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Reporting metrics
		ReportsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reporting",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated by format",
		}, []string{"format"}),

		// Health metrics
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last successful optimization run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRun records an optimization run outcome.
func RecordRun(mode, status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordStrategyChosen records a selected strategy and its size.
func RecordStrategyChosen(numAllocations int) {
	DefaultMetrics.StrategiesChosen.Inc()
	DefaultMetrics.AllocationCount.Observe(float64(numAllocations))
}

// RecordSolverCall records a solver engine call.
func RecordSolverCall(mode string, seconds float64) {
	DefaultMetrics.SolverCallLatency.WithLabelValues(mode).Observe(seconds)
}

// RecordSolverDivergence increments the divergence counter.
func RecordSolverDivergence() {
	DefaultMetrics.SolverDivergences.Inc()
}

// RecordMalformedResponse increments the malformed response counter.
func RecordMalformedResponse() {
	DefaultMetrics.MalformedResponses.Inc()
}

// RecordBudgetViolation increments the budget violation counter.
func RecordBudgetViolation() {
	DefaultMetrics.BudgetViolations.Inc()
}

// RecordNetworkQuery records a network subgraph query.
func RecordNetworkQuery(operation string, seconds float64, err error) {
	DefaultMetrics.NetworkQueryLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.NetworkQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordEpoch updates the current epoch gauge.
func RecordEpoch(epoch int64) {
	DefaultMetrics.CurrentEpoch.Set(float64(epoch))
	DefaultMetrics.EpochsObserved.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordReport records a generated report.
func RecordReport(format string) {
	DefaultMetrics.ReportsGenerated.WithLabelValues(format).Inc()
}

// RecordSuccessfulRun updates the health gauge.
func RecordSuccessfulRun(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulRun.Set(float64(unixSeconds))
}
