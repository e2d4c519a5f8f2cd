package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daimoniac/aaalint/internal/analyzer"
	"github.com/daimoniac/aaalint/internal/config"
	"github.com/daimoniac/aaalint/internal/errors"
	"github.com/daimoniac/aaalint/internal/observability"
	"github.com/daimoniac/aaalint/internal/policy"
	"github.com/daimoniac/aaalint/internal/pyast"
	"github.com/daimoniac/aaalint/internal/queue"
	"github.com/daimoniac/aaalint/internal/statestore"
)

// Worker defines the interface for processing analysis tasks
type Worker interface {
	// Start begins processing tasks from the queue
	Start(ctx context.Context) error

	// ProcessTask executes the complete workflow for one test snippet
	ProcessTask(ctx context.Context, task *queue.AnalysisTask) error
}

// Config contains configuration for the worker
type Config struct {
	RetryAttempts int
	RetryBackoff  time.Duration
	Concurrency   int // Number of concurrent workers
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		RetryAttempts: 3,
		RetryBackoff:  10 * time.Second,
		Concurrency:   3,
	}
}

// AnalysisWorker implements the Worker interface
type AnalysisWorker struct {
	queue      queue.TaskQueue
	parser     *pyast.Parser
	analyzer   analyzer.Backend
	policy     policy.PolicyEngine
	stateStore statestore.StateStore
	config     Config
	storeCfg   config.StateStoreConfig
	lintCfg    *config.LintConfig
	logger     *slog.Logger
	wg         sync.WaitGroup
	pipeline   *Pipeline
}

// NewAnalysisWorker creates a new worker instance
func NewAnalysisWorker(
	queue queue.TaskQueue,
	parser *pyast.Parser,
	analyzer analyzer.Backend,
	policy policy.PolicyEngine,
	stateStore statestore.StateStore,
	config Config,
	storeCfg config.StateStoreConfig,
	lintCfg *config.LintConfig,
	logger *slog.Logger,
) *AnalysisWorker {
	if logger == nil {
		logger = slog.Default()
	}

	worker := &AnalysisWorker{
		queue:      queue,
		parser:     parser,
		analyzer:   analyzer,
		policy:     policy,
		stateStore: stateStore,
		config:     config,
		storeCfg:   storeCfg,
		lintCfg:    lintCfg,
		logger:     logger,
	}

	worker.pipeline = NewPipeline(worker, logger)

	return worker
}

// Start begins processing tasks from the queue
func (w *AnalysisWorker) Start(ctx context.Context) error {
	concurrency := w.config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	w.logger.Info("worker starting", "concurrency", concurrency)

	// Register database metrics collector (once across all worker instances)
	observability.RegisterDatabaseCollector(w.stateStore, w.logger)

	// Create a cancellable context for the worker
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start multiple processing loops for concurrent processing
	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go func(workerID int) {
			defer w.wg.Done()
			w.processLoop(workerCtx, workerID)
		}(i)
	}

	// Wait for context cancellation
	<-workerCtx.Done()

	w.logger.Info("worker shutting down, waiting for in-flight tasks to complete")

	// Wait for in-flight tasks to complete with timeout
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker shutdown complete")
		return nil
	case <-time.After(30 * time.Second):
		w.logger.Warn("worker shutdown timeout, some tasks may not have completed")
		return fmt.Errorf("shutdown timeout")
	}
}

// processLoop is the main task processing loop
func (w *AnalysisWorker) processLoop(ctx context.Context, workerID int) {
	w.logger.Info("worker processing loop started", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker processing loop stopping", "worker_id", workerID)
			return
		default:
			// Dequeue a task (blocking with context)
			task, err := w.queue.Dequeue(ctx)
			if err != nil {
				if ctx.Err() != nil {
					// Context cancelled, exit gracefully
					w.logger.Info("worker dequeue cancelled", "worker_id", workerID, "error", err)
					return
				}
				w.logger.Error("failed to dequeue task", "worker_id", workerID, "error", err)
				// Brief sleep to avoid tight loop on persistent errors
				time.Sleep(time.Second)
				continue
			}

			w.logger.Info("processing task",
				"worker_id", workerID,
				"task_id", task.ID,
				"suite", task.Suite,
				"file", task.FilePath,
				"test", task.TestName,
				"is_reanalyze", task.IsReanalyze)

			if err := w.ProcessTask(ctx, task); err != nil {
				// Log once here with full context
				w.logger.Error("task processing failed",
					"worker_id", workerID,
					"task_id", task.ID,
					"suite", task.Suite,
					"test", task.TestName,
					"error", err)
				metrics := observability.GetMetrics()
				metrics.WorkerErrors.Inc()
				_ = w.queue.Fail(ctx, task.ID, err)
			} else {
				w.logger.Info("task processing completed",
					"worker_id", workerID,
					"task_id", task.ID,
					"suite", task.Suite,
					"test", task.TestName)
				metrics := observability.GetMetrics()
				metrics.WorkerTasksProcessed.Inc()
				_ = w.queue.Complete(ctx, task.ID)
			}
		}
	}
}

// ErrorHandlerAction determines what action to take for a given error
type ErrorHandlerAction int

const (
	// ActionRetry indicates the error is transient and should be retried
	ActionRetry ErrorHandlerAction = iota
	// ActionFail indicates the error is permanent and should not be retried
	ActionFail
)

// handleTaskError classifies an error and determines the appropriate action.
// This centralizes error classification logic and reduces cognitive load in the retry loop.
func (w *AnalysisWorker) handleTaskError(err error, attempt int, task *queue.AnalysisTask) (ErrorHandlerAction, time.Duration) {
	if err == nil {
		return ActionRetry, 0
	}

	if !errors.IsTransient(err) {
		// Permanent errors should not be retried
		return ActionFail, 0
	}

	if attempt >= w.config.RetryAttempts {
		// No more retries available
		return ActionFail, 0
	}

	backoff := w.config.RetryBackoff * time.Duration(attempt)
	w.logger.Warn("transient error, retrying",
		"task_id", task.ID,
		"suite", task.Suite,
		"test", task.TestName,
		"attempt", attempt,
		"max_attempts", w.config.RetryAttempts,
		"backoff", backoff,
		"error", err)

	return ActionRetry, backoff
}

// ProcessTask executes the complete workflow for one test snippet with retry logic
func (w *AnalysisWorker) ProcessTask(ctx context.Context, task *queue.AnalysisTask) error {
	if task == nil {
		return errors.NewPermanentf("task is nil")
	}

	var lastErr error
	for attempt := 1; attempt <= w.config.RetryAttempts; attempt++ {
		err := w.pipeline.Execute(ctx, task)
		if err == nil {
			return nil
		}

		lastErr = err
		task.Attempts = attempt

		action, backoff := w.handleTaskError(err, attempt, task)

		switch action {
		case ActionFail:
			// Permanent error or retries exhausted
			return err

		case ActionRetry:
			// Transient error, retry with backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				// Continue to next attempt
			}
		}
	}

	// All retries exhausted
	return errors.NewPermanentf("max retries exceeded: %w", lastErr)
}
