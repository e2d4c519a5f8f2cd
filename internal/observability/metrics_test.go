package observability

import "testing"

func TestGetMetrics_Singleton(t *testing.T) {
	first := GetMetrics()
	second := GetMetrics()

	if first == nil {
		t.Fatal("GetMetrics returned nil")
	}
	if first != second {
		t.Error("GetMetrics returned different instances")
	}
}

func TestGetMetrics_CountersUsable(t *testing.T) {
	metrics := GetMetrics()

	// Exercising the metrics must not panic; promauto registration happens once.
	metrics.QueueEnqueued.Inc()
	metrics.QueueDepth.Set(3)
	metrics.AnalysesTotal.Inc()
	metrics.AnalysisDuration.Observe(1.5)
	metrics.IssuesFound.WithLabelValues("Missing Assert").Inc()
	metrics.VerdictFailed.Inc()
}
