package watcher

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/daimoniac/aaalint/internal/config"
	"github.com/daimoniac/aaalint/internal/errors"
	"github.com/daimoniac/aaalint/internal/observability"
	"github.com/daimoniac/aaalint/internal/pyast"
	"github.com/daimoniac/aaalint/internal/queue"
	"github.com/daimoniac/aaalint/internal/statestore"
	"github.com/daimoniac/aaalint/internal/types"
)

// Watcher continuously monitors the configured test suites for new and changed tests
type Watcher interface {
	// Start begins the continuous discovery loop
	Start(ctx context.Context) error

	// Discover performs a single discovery cycle
	Discover(ctx context.Context) error
}

// watcherImpl implements the Watcher interface
type watcherImpl struct {
	lintConfig        *config.LintConfig
	parser            *pyast.Parser
	stateStore        statestore.StateStore
	taskQueue         queue.TaskQueue
	pollInterval      time.Duration
	reanalyzeInterval time.Duration
	logger            *slog.Logger
}

// Config contains configuration for the watcher
type Config struct {
	PollInterval      time.Duration
	ReanalyzeInterval time.Duration
}

// NewWatcher creates a new suite watcher
func NewWatcher(
	lintConfig *config.LintConfig,
	parser *pyast.Parser,
	stateStore statestore.StateStore,
	taskQueue queue.TaskQueue,
	config Config,
	logger *slog.Logger,
) Watcher {
	return &watcherImpl{
		lintConfig:        lintConfig,
		parser:            parser,
		stateStore:        stateStore,
		taskQueue:         taskQueue,
		pollInterval:      config.PollInterval,
		reanalyzeInterval: config.ReanalyzeInterval,
		logger:            logger,
	}
}

// Start begins the continuous discovery loop
func (w *watcherImpl) Start(ctx context.Context) error {
	w.logger.Info("starting suite watcher",
		"poll_interval", w.pollInterval.String(),
		"reanalyze_interval", w.reanalyzeInterval.String())

	// Perform initial discovery
	if err := w.Discover(ctx); err != nil {
		w.logger.Error("initial discovery failed",
			"error", err.Error())
	}

	// Start polling loop, wait for poll interval after each discovery completes
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("suite watcher shutting down")
			return ctx.Err()
		case <-time.After(w.pollInterval):
			if err := w.Discover(ctx); err != nil {
				w.logger.Error("discovery cycle failed",
					"error", err.Error())
			}
		}
	}
}

// Discover performs a single discovery cycle
func (w *watcherImpl) Discover(ctx context.Context) error {
	w.logger.Info("starting discovery cycle")

	if w.lintConfig == nil {
		return fmt.Errorf("lintfile configuration is not loaded")
	}

	w.logger.Info("discovered configured suites",
		"count", len(w.lintConfig.Suites))

	for i := range w.lintConfig.Suites {
		suite := &w.lintConfig.Suites[i]
		if err := w.processSuite(ctx, suite); err != nil {
			w.logger.Error("failed to process suite",
				"suite", suite.Name,
				"error", err.Error())
			continue
		}
	}

	w.updateBacklogGauge(ctx)

	w.logger.Info("discovery cycle completed")
	return nil
}

// updateBacklogGauge publishes how many known tests are overdue for reanalysis
func (w *watcherImpl) updateBacklogGauge(ctx context.Context) {
	due, err := w.stateStore.ListDueForReanalysis(ctx)
	if err != nil {
		w.logger.Warn("failed to query reanalysis backlog",
			"error", err.Error())
		return
	}

	observability.GetMetrics().ReanalysisBacklog.Set(float64(len(due)))
}

// processSuite discovers and enqueues test snippets from a single suite
func (w *watcherImpl) processSuite(ctx context.Context, suite *config.SuiteEntry) error {
	tolerations := w.lintConfig.GetTolerationsForSuite(suite.Name)

	// Check for expiring tolerations and log warnings
	w.checkExpiringTolerations(suite.Name, tolerations)

	// Get reanalyze interval from the lintfile (with fallback)
	reanalyzeInterval, err := w.lintConfig.GetReanalyzeInterval(suite.Name)
	if err != nil {
		w.logger.Warn("failed to parse reanalyze interval, using default 7d",
			"suite", suite.Name,
			"error", err.Error())
		reanalyzeInterval = 7 * 24 * time.Hour
	}
	if w.reanalyzeInterval > 0 {
		reanalyzeInterval = w.reanalyzeInterval
	}

	files, err := w.expandPaths(suite.Paths)
	if err != nil {
		return fmt.Errorf("failed to expand suite paths: %w", err)
	}

	w.logger.Debug("suite files discovered",
		"suite", suite.Name,
		"file_count", len(files))

	for _, file := range files {
		if err := w.processFile(ctx, suite.Name, file, tolerations, reanalyzeInterval); err != nil {
			w.logger.Error("failed to process test file",
				"suite", suite.Name,
				"file", file,
				"error", err.Error())
			continue
		}
	}

	return nil
}

// expandPaths resolves suite path globs to concrete file paths
func (w *watcherImpl) expandPaths(patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errors.NewPermanentf("invalid path pattern %q: %w", pattern, err)
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			if filepath.Ext(match) != ".py" {
				continue
			}
			if !seen[match] {
				seen[match] = true
				files = append(files, match)
			}
		}
	}

	return files, nil
}

// processFile extracts test snippets from a single file and enqueues the stale ones
func (w *watcherImpl) processFile(ctx context.Context, suiteName, file string, tolerations []types.IssueToleration, reanalyzeInterval time.Duration) error {
	metrics := observability.GetMetrics()

	source, err := os.ReadFile(file)
	if err != nil {
		return errors.NewTransientf("failed to read test file: %w", err)
	}

	snippets, err := w.parser.ExtractTests(ctx, source)
	if err != nil {
		if errors.IsSyntax(err) {
			// A file that no longer parses is a suite problem, not a watcher failure
			metrics.DiscoveryErrors.Inc()
			w.logger.Warn("test file contains syntax errors, skipping",
				"suite", suiteName,
				"file", file)
			return nil
		}
		return fmt.Errorf("failed to extract tests: %w", err)
	}

	metrics.TestsDiscovered.Add(float64(len(snippets)))

	for _, snippet := range snippets {
		if err := w.processSnippet(ctx, suiteName, file, snippet, tolerations, reanalyzeInterval); err != nil {
			w.logger.Error("failed to process test snippet",
				"suite", suiteName,
				"file", file,
				"test", snippet.Name,
				"error", err.Error())
			continue
		}
	}

	return nil
}

// shouldAnalyzeSnippet determines if a snippet needs analysis based on hash comparison and history
func (w *watcherImpl) shouldAnalyzeSnippet(
	ctx context.Context,
	snippetHash string,
	reanalyzeInterval time.Duration,
) (shouldAnalyze bool, reason string, isReanalyze bool, err error) {
	// Step 1: Check analysis history
	lastAnalysis, err := w.stateStore.GetLastAnalysis(ctx, snippetHash)
	if err != nil {
		if goerrors.Is(err, statestore.ErrAnalysisNotFound) {
			return true, "never analyzed before", false, nil
		}
		return false, "", false, fmt.Errorf("failed to check analysis history: %w", err)
	}

	// Step 2: Check reanalyze interval
	analyzedAt := time.Unix(lastAnalysis.CreatedAt, 0)
	timeSinceAnalysis := time.Since(analyzedAt)
	if timeSinceAnalysis >= reanalyzeInterval {
		return true, fmt.Sprintf("reanalyze interval elapsed (%v since last analysis)", timeSinceAnalysis), true, nil
	}

	// Step 3: Skip, already analyzed and unchanged
	return false, fmt.Sprintf("already analyzed %v ago, no changes", timeSinceAnalysis), false, nil
}

// processSnippet enqueues a single test snippet if it needs analysis
func (w *watcherImpl) processSnippet(ctx context.Context, suiteName, file string, snippet pyast.TestSnippet, tolerations []types.IssueToleration, reanalyzeInterval time.Duration) error {
	shouldAnalyze, reason, isReanalyze, err := w.shouldAnalyzeSnippet(ctx, snippet.Hash, reanalyzeInterval)
	if err != nil {
		w.logger.Error("failed to determine analysis necessity, enqueuing to be safe",
			"suite", suiteName,
			"file", file,
			"test", snippet.Name,
			"error", err.Error())
		shouldAnalyze = true
		reason = "error checking analysis state"
		isReanalyze = false
	}

	if !shouldAnalyze {
		w.logger.Debug("skipping analysis",
			"suite", suiteName,
			"file", file,
			"test", snippet.Name,
			"snippet_hash", snippet.Hash,
			"reason", reason)
		return nil
	}

	w.logger.Debug("enqueuing analysis task",
		"suite", suiteName,
		"file", file,
		"test", snippet.Name,
		"snippet_hash", snippet.Hash,
		"reason", reason,
		"is_reanalyze", isReanalyze)

	task := &queue.AnalysisTask{
		ID:          fmt.Sprintf("%s-%d", snippet.Hash, time.Now().UnixNano()),
		Suite:       suiteName,
		FilePath:    file,
		TestName:    snippet.Name,
		Source:      snippet.Source,
		SnippetHash: snippet.Hash,
		EnqueuedAt:  time.Now(),
		IsReanalyze: isReanalyze,
		Tolerations: tolerations,
	}

	if err := w.taskQueue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// checkExpiringTolerations logs warnings for tolerations expiring soon
func (w *watcherImpl) checkExpiringTolerations(suiteName string, tolerations []types.IssueToleration) {
	now := time.Now()
	warningThreshold := 7 * 24 * time.Hour

	for _, toleration := range tolerations {
		if toleration.ExpiresAt == nil {
			continue
		}

		timeUntilExpiry := toleration.ExpiresAt.Sub(now)
		if timeUntilExpiry > 0 && timeUntilExpiry <= warningThreshold {
			w.logger.Warn("issue toleration expiring soon",
				"suite", suiteName,
				"issue", toleration.Issue,
				"time_until_expiry", timeUntilExpiry.String(),
				"statement", toleration.Statement)
		}
	}
}
