package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/daimoniac/aaalint/internal/statestore"
)

var (
	dbCollectorOnce     sync.Once
	dbCollectorInstance *DatabaseCollector
)

// DatabaseCollector collects metrics from the database on-demand when /metrics is scraped
type DatabaseCollector struct {
	store  statestore.StateStore
	logger *slog.Logger

	// Metric descriptors
	toleratedIssuesDesc          *prometheus.Desc
	expiredTolerationsDesc       *prometheus.Desc
	expiringTolerationsDesc      *prometheus.Desc
	tolerationsWithoutExpiryDesc *prometheus.Desc
	issuesFoundDesc              *prometheus.Desc
	verdictFailedDesc            *prometheus.Desc
}

// NewDatabaseCollector creates a new database metrics collector
func NewDatabaseCollector(store statestore.StateStore, logger *slog.Logger) *DatabaseCollector {
	return &DatabaseCollector{
		store:  store,
		logger: logger,
		toleratedIssuesDesc: prometheus.NewDesc(
			"aaalint_tolerated_issues",
			"Current total number of issues that are tolerated",
			nil,
			nil,
		),
		expiredTolerationsDesc: prometheus.NewDesc(
			"aaalint_expired_tolerations",
			"Number of expired tolerations per suite",
			[]string{"suite"},
			nil,
		),
		expiringTolerationsDesc: prometheus.NewDesc(
			"aaalint_expiring_tolerations_soon",
			"Number of tolerations expiring within 7 days per suite",
			[]string{"suite"},
			nil,
		),
		tolerationsWithoutExpiryDesc: prometheus.NewDesc(
			"aaalint_tolerations_without_expiry",
			"Number of tolerations without an expiry date per suite",
			[]string{"suite"},
			nil,
		),
		issuesFoundDesc: prometheus.NewDesc(
			"aaalint_issues_found",
			"Current number of AAA issues recorded by issue type",
			[]string{"issue_type"},
			nil,
		),
		verdictFailedDesc: prometheus.NewDesc(
			"aaalint_verdicts_failed",
			"Current number of tests whose latest analysis failed verdict evaluation",
			nil,
			nil,
		),
	}
}

// RegisterDatabaseCollector registers the database collector exactly once
func RegisterDatabaseCollector(store statestore.StateStore, logger *slog.Logger) {
	dbCollectorOnce.Do(func() {
		dbCollectorInstance = NewDatabaseCollector(store, logger)
		prometheus.MustRegister(dbCollectorInstance)
		logger.Info("database metrics collector registered")
	})
}

// Describe sends the metric descriptors to the provided channel
func (c *DatabaseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.toleratedIssuesDesc
	ch <- c.expiredTolerationsDesc
	ch <- c.expiringTolerationsDesc
	ch <- c.tolerationsWithoutExpiryDesc
	ch <- c.issuesFoundDesc
	ch <- c.verdictFailedDesc
}

// Collect queries the database and sends current metrics to the provided channel
func (c *DatabaseCollector) Collect(ch chan<- prometheus.Metric) {
	// Metrics don't need to be real-time, but they should succeed under
	// moderate database contention without blocking /metrics indefinitely.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	queryStore, ok := c.store.(statestore.StateStoreQuery)
	if !ok {
		c.logger.Warn("state store does not support queries, skipping database metrics")
		return
	}

	c.collectTolerations(ctx, queryStore, ch)
	c.collectIssues(ctx, queryStore, ch)
	c.collectVerdicts(ctx, queryStore, ch)
}

func (c *DatabaseCollector) collectTolerations(ctx context.Context, store statestore.StateStoreQuery, ch chan<- prometheus.Metric) {
	tolerations, err := store.ListTolerations(ctx, statestore.TolerationFilter{})
	if err != nil {
		c.logger.Warn("failed to collect toleration metrics", "error", err.Error())
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.toleratedIssuesDesc,
		prometheus.GaugeValue,
		float64(len(tolerations)),
	)

	now := time.Now()
	expiryWindow := now.Add(7 * 24 * time.Hour)

	expired := make(map[string]int)
	expiring := make(map[string]int)
	withoutExpiry := make(map[string]int)

	for _, toleration := range tolerations {
		switch {
		case toleration.ExpiresAt == nil:
			withoutExpiry[toleration.Suite]++
		case toleration.ExpiresAt.Before(now):
			expired[toleration.Suite]++
		case toleration.ExpiresAt.Before(expiryWindow):
			expiring[toleration.Suite]++
		}
	}

	for suite, count := range expired {
		ch <- prometheus.MustNewConstMetric(c.expiredTolerationsDesc, prometheus.GaugeValue, float64(count), suite)
	}
	for suite, count := range expiring {
		ch <- prometheus.MustNewConstMetric(c.expiringTolerationsDesc, prometheus.GaugeValue, float64(count), suite)
	}
	for suite, count := range withoutExpiry {
		ch <- prometheus.MustNewConstMetric(c.tolerationsWithoutExpiryDesc, prometheus.GaugeValue, float64(count), suite)
	}
}

func (c *DatabaseCollector) collectIssues(ctx context.Context, store statestore.StateStoreQuery, ch chan<- prometheus.Metric) {
	counts, err := store.CountIssuesByType(ctx)
	if err != nil {
		c.logger.Warn("failed to collect issue metrics", "error", err.Error())
		return
	}

	for issueType, count := range counts {
		ch <- prometheus.MustNewConstMetric(c.issuesFoundDesc, prometheus.GaugeValue, float64(count), issueType)
	}
}

func (c *DatabaseCollector) collectVerdicts(ctx context.Context, store statestore.StateStoreQuery, ch chan<- prometheus.Metric) {
	count, err := store.CountFailedVerdicts(ctx)
	if err != nil {
		c.logger.Warn("failed to collect verdict metrics", "error", err.Error())
		return
	}

	ch <- prometheus.MustNewConstMetric(c.verdictFailedDesc, prometheus.GaugeValue, float64(count))
}
