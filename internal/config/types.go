package config

import (
	"log/slog"
	"time"

	"github.com/daimoniac/aaalint/internal/types"
)

// Config represents the complete application configuration
type Config struct {
	LintfilePath  string
	Queue         QueueConfig
	Worker        WorkerConfig
	Analyzer      AnalyzerConfig
	StateStore    StateStoreConfig
	API           APIConfig
	Observability ObservabilityConfig
}

// QueueConfig configures the in-memory task queue
type QueueConfig struct {
	BufferSize int
}

// WorkerConfig configures the worker behavior
type WorkerConfig struct {
	PollInterval  time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	Concurrency   int
}

// AnalyzerConfig configures the connection to the LLM backend
type AnalyzerConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
	Logger      *slog.Logger // Logger instance for structured logging
}

// StateStoreConfig configures the state store
type StateStoreConfig struct {
	Type              string
	SQLitePath        string
	ReanalyzeInterval time.Duration
	MaxRecordsPerTest int
}

// APIConfig configures the HTTP API server
type APIConfig struct {
	Enabled  bool
	Port     int
	APIKey   string
	ReadOnly bool
}

// ObservabilityConfig configures logging and metrics
type ObservabilityConfig struct {
	LogLevel        string
	MetricsPort     int
	HealthCheckPort int
}

// LintConfig represents the complete aaalint.yml configuration
type LintConfig struct {
	Version  int          `yaml:"version"`
	Defaults Defaults     `yaml:"defaults"`
	Suites   []SuiteEntry `yaml:"suites"`
}

// Defaults contains default configuration values shared by all suites
type Defaults struct {
	Parallel           int                     `yaml:"parallel,omitempty"`
	ReanalyzeInterval  string                  `yaml:"reanalyzeInterval,omitempty"`
	WatcherPollInterval string                 `yaml:"watcherPollInterval,omitempty"`
	Policy             *PolicyConfig           `yaml:"policy,omitempty"`
	Tolerate           []types.IssueToleration `yaml:"tolerate,omitempty"` // Default tolerations merged with suite-specific ones
}

// SuiteEntry represents a single test suite to watch and analyze
type SuiteEntry struct {
	Name              string                  `yaml:"name"`
	Paths             []string                `yaml:"paths"`
	Tolerate          []types.IssueToleration `yaml:"tolerate,omitempty"`
	ReanalyzeInterval string                  `yaml:"reanalyzeInterval,omitempty"`
	Policy            *PolicyConfig           `yaml:"policy,omitempty"`
}

// PolicyConfig represents a CEL-based verdict policy
type PolicyConfig struct {
	Expression     string `yaml:"expression"`
	FailureMessage string `yaml:"failureMessage,omitempty"`
}
