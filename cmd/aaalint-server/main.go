package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/daimoniac/aaalint/internal/analyzer"
	"github.com/daimoniac/aaalint/internal/api"
	"github.com/daimoniac/aaalint/internal/config"
	"github.com/daimoniac/aaalint/internal/observability"
	"github.com/daimoniac/aaalint/internal/policy"
	"github.com/daimoniac/aaalint/internal/pyast"
	"github.com/daimoniac/aaalint/internal/queue"
	"github.com/daimoniac/aaalint/internal/statestore"
	"github.com/daimoniac/aaalint/internal/version"
	"github.com/daimoniac/aaalint/internal/watcher"
	"github.com/daimoniac/aaalint/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel)
	logger.Info("starting aaalint server",
		"version", version.Version,
		"lintfile", cfg.LintfilePath,
		"log_level", cfg.Observability.LogLevel)

	_ = observability.GetMetrics()
	logger.Debug("metrics initialized",
		"metrics_port", cfg.Observability.MetricsPort)

	healthChecker := observability.NewHealthChecker(logger)

	healthChecker.RegisterComponent("config")
	healthChecker.RegisterComponent("queue")
	healthChecker.RegisterComponent("worker")
	healthChecker.RegisterComponent("analyzer")
	healthChecker.RegisterComponent("database")
	healthChecker.RegisterComponent("watcher")

	healthChecker.UpdateComponentHealth("config", observability.StatusHealthy, "")

	obsServer := observability.NewServer(
		cfg.Observability.MetricsPort,
		cfg.Observability.HealthCheckPort,
		logger,
		healthChecker,
	)

	go func() {
		if err := obsServer.Start(ctx); err != nil {
			logger.Error("observability server error",
				"error", err.Error())
		}
	}()

	logger.Debug("observability server started",
		"metrics_port", cfg.Observability.MetricsPort,
		"health_port", cfg.Observability.HealthCheckPort)

	logger.Debug("parsing lintfile",
		"path", cfg.LintfilePath)
	lintCfg, err := config.ParseLintfile(cfg.LintfilePath)
	if err != nil {
		return fmt.Errorf("failed to parse lintfile: %w", err)
	}
	logger.Debug("lintfile parsed",
		"suites", len(lintCfg.Suites))

	logger.Debug("initializing state store",
		"type", cfg.StateStore.Type)
	var store statestore.StateStoreQuery
	switch cfg.StateStore.Type {
	case "sqlite":
		store, err = statestore.NewSQLiteStore(cfg.StateStore.SQLitePath)
		if err != nil {
			healthChecker.UpdateComponentHealth("database", observability.StatusUnhealthy, err.Error())
			return fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
	case "memory":
		return fmt.Errorf("memory state store not yet implemented")
	default:
		return fmt.Errorf("unsupported state store type: %s", cfg.StateStore.Type)
	}
	healthChecker.UpdateComponentHealth("database", observability.StatusHealthy, "")
	logger.Debug("state store initialized")

	logger.Debug("initializing task queue",
		"buffer_size", cfg.Queue.BufferSize)
	taskQueue := queue.NewInMemoryQueue(cfg.Queue.BufferSize)
	healthChecker.UpdateComponentHealth("queue", observability.StatusHealthy, "")
	logger.Debug("task queue initialized")

	parser := pyast.NewParser()
	logger.Debug("python parser initialized")

	logger.Debug("initializing analyzer backend",
		"model", cfg.Analyzer.Model)
	backend, err := analyzer.NewClient(cfg.Analyzer)
	if err != nil {
		healthChecker.UpdateComponentHealth("analyzer", observability.StatusUnhealthy, err.Error())
		return fmt.Errorf("failed to initialize analyzer backend: %w", err)
	}

	if err := backend.HealthCheck(ctx); err != nil {
		healthChecker.UpdateComponentHealth("analyzer", observability.StatusUnhealthy, err.Error())
		logger.Warn("analyzer backend not reachable",
			"error", err.Error())
	} else {
		healthChecker.UpdateComponentHealth("analyzer", observability.StatusHealthy, "")
		logger.Debug("analyzer backend initialized and connected")
	}

	logger.Debug("initializing policy engine")
	defaultPolicy := config.PolicyConfig{}
	if lintCfg.Defaults.Policy != nil {
		defaultPolicy = *lintCfg.Defaults.Policy
	}
	policyEngine, err := policy.NewEngine(logger, defaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	logger.Debug("policy engine initialized")

	pollInterval, err := lintCfg.GetWatcherPollInterval()
	if err != nil {
		return fmt.Errorf("invalid watcher poll interval: %w", err)
	}
	if pollInterval == 0 {
		pollInterval = cfg.Worker.PollInterval
	}

	logger.Debug("initializing suite watcher",
		"poll_interval", pollInterval,
		"reanalyze_interval", cfg.StateStore.ReanalyzeInterval)
	watcherConfig := watcher.Config{
		PollInterval:      pollInterval,
		ReanalyzeInterval: cfg.StateStore.ReanalyzeInterval,
	}
	suiteWatcher := watcher.NewWatcher(
		lintCfg,
		parser,
		store,
		taskQueue,
		watcherConfig,
		logger,
	)
	healthChecker.UpdateComponentHealth("watcher", observability.StatusHealthy, "")
	logger.Debug("suite watcher initialized")

	logger.Debug("initializing worker",
		"retry_attempts", cfg.Worker.RetryAttempts,
		"retry_backoff", cfg.Worker.RetryBackoff,
		"concurrency", cfg.Worker.Concurrency)
	workerConfig := worker.Config{
		RetryAttempts: cfg.Worker.RetryAttempts,
		RetryBackoff:  cfg.Worker.RetryBackoff,
		Concurrency:   cfg.Worker.Concurrency,
	}
	workerInstance := worker.NewAnalysisWorker(
		taskQueue,
		parser,
		backend,
		policyEngine,
		store,
		workerConfig,
		cfg.StateStore,
		lintCfg,
		logger,
	)
	healthChecker.UpdateComponentHealth("worker", observability.StatusHealthy, "")
	logger.Debug("worker initialized")

	var apiServer *api.APIServer
	if cfg.API.Enabled {
		logger.Debug("initializing API server",
			"port", cfg.API.Port,
			"read_only", cfg.API.ReadOnly)
		apiServer = api.NewAPIServer(
			&cfg.API,
			store,
			taskQueue,
			parser,
			backend,
			cfg.LintfilePath,
			logger,
		)
		logger.Debug("API server initialized")
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Debug("starting suite watcher")
		if err := suiteWatcher.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("suite watcher error",
				"error", err.Error())
			errChan <- fmt.Errorf("suite watcher error: %w", err)
		}
		logger.Debug("suite watcher stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Debug("starting worker")
		if err := workerInstance.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("worker error",
				"error", err.Error())
			errChan <- fmt.Errorf("worker error: %w", err)
		}
		logger.Debug("worker stopped")
	}()

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("API server listening",
				"port", cfg.API.Port)
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("API server error",
					"error", err.Error())
				errChan <- fmt.Errorf("API server error: %w", err)
			}
			logger.Debug("API server stopped")
		}()
	}

	logger.Info("all components started successfully")

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errChan:
		logger.Error("component error, initiating shutdown",
			"error", err.Error())
		cancel()
	}

	logger.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}

	queueDepth, _ := taskQueue.GetQueueDepth(shutdownCtx)
	if queueDepth > 0 {
		logger.Warn("queue not empty at shutdown",
			"remaining_tasks", queueDepth)
	} else {
		logger.Debug("queue drained successfully")
	}

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down API server",
				"error", err.Error())
		}
	}

	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down observability server",
			"error", err.Error())
	}

	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("error closing state store",
				"error", err.Error())
		}
	}

	logger.Info("shutdown complete")
	return nil
}
