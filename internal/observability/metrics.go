package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Queue metrics
	QueueDepth     prometheus.Gauge
	QueueEnqueued  prometheus.Counter
	QueueDequeued  prometheus.Counter
	QueueCompleted prometheus.Counter
	QueueFailed    prometheus.Counter

	// Analysis metrics
	AnalysesTotal    prometheus.Counter
	AnalysesFailed   prometheus.Counter
	AnalysisDuration prometheus.Histogram
	SyntaxErrors     prometheus.Counter

	// Verdict metrics
	VerdictPassed prometheus.Counter
	VerdictFailed prometheus.Counter

	// Issue metrics
	IssuesFound     *prometheus.CounterVec
	ToleratedIssues prometheus.Counter

	// Discovery metrics
	TestsDiscovered   prometheus.Counter
	DiscoveryErrors   prometheus.Counter
	ReanalysisBacklog prometheus.Gauge

	// Worker metrics
	WorkerTasksProcessed prometheus.Counter
	WorkerErrors         prometheus.Counter

	// API metrics
	AnalyzeRequests       prometheus.Counter
	AnalyzeRequestsFailed prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			// Queue metrics
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "aaalint_queue_depth",
				Help: "Current number of tasks in the queue",
			}),
			QueueEnqueued: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_queue_enqueued_total",
				Help: "Total number of tasks enqueued",
			}),
			QueueDequeued: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_queue_dequeued_total",
				Help: "Total number of tasks dequeued",
			}),
			QueueCompleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_queue_completed_total",
				Help: "Total number of tasks completed successfully",
			}),
			QueueFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_queue_failed_total",
				Help: "Total number of tasks that failed",
			}),

			// Analysis metrics
			AnalysesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_analyses_total",
				Help: "Total number of analyses performed",
			}),
			AnalysesFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_analyses_failed_total",
				Help: "Total number of analyses that failed",
			}),
			AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "aaalint_analysis_duration_seconds",
				Help:    "Duration of analysis operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
			}),
			SyntaxErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_syntax_errors_total",
				Help: "Total number of snippets rejected as invalid Python",
			}),

			// Verdict metrics
			VerdictPassed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_verdict_passed_total",
				Help: "Total number of tests that passed verdict evaluation",
			}),
			VerdictFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_verdict_failed_total",
				Help: "Total number of tests that failed verdict evaluation",
			}),

			// Issue metrics
			IssuesFound: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aaalint_issues_found_total",
					Help: "Total number of AAA issues found by issue type",
				},
				[]string{"issue_type"},
			),
			ToleratedIssues: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_tolerated_issues_total",
				Help: "Total number of issues that were tolerated",
			}),

			// Discovery metrics
			TestsDiscovered: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_tests_discovered_total",
				Help: "Total number of test functions discovered",
			}),
			DiscoveryErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_discovery_errors_total",
				Help: "Total number of suite discovery errors",
			}),
			ReanalysisBacklog: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "aaalint_reanalysis_backlog",
				Help: "Number of tests whose scheduled reanalysis is overdue",
			}),

			// Worker metrics
			WorkerTasksProcessed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_worker_tasks_processed_total",
				Help: "Total number of tasks processed by workers",
			}),
			WorkerErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_worker_errors_total",
				Help: "Total number of worker errors",
			}),

			// API metrics
			AnalyzeRequests: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_analyze_requests_total",
				Help: "Total number of synchronous analyze requests received",
			}),
			AnalyzeRequestsFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aaalint_analyze_requests_failed_total",
				Help: "Total number of synchronous analyze requests that failed",
			}),
		}
	})
	return metricsInstance
}
