package observability

// Package observability provides structured logging, Prometheus metrics,
// and health checking capabilities for aaalint.
//
// Key features:
// - Structured JSON logging with configurable log levels
// - Prometheus metrics for monitoring analyses, queue, verdicts, and operations
// - Health checks for component status monitoring
// - HTTP endpoints for /metrics, /health, and /ready
