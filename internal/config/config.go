package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAnalyzerBaseURL is Gemini's OpenAI-compatible chat completions endpoint.
const DefaultAnalyzerBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Load loads configuration from environment variables and files
func Load() (*Config, error) {
	lintfilePath := getEnv("AAALINT_CONFIG", "aaalint.yml")

	// Try to load the lintfile for defaults without pulling in the full parser
	var workerPollInterval time.Duration
	var reanalyzeInterval time.Duration

	if data, err := os.ReadFile(lintfilePath); err == nil {
		var lintDefaults struct {
			Defaults struct {
				WatcherPollInterval string `yaml:"watcherPollInterval"`
				ReanalyzeInterval   string `yaml:"reanalyzeInterval"`
			} `yaml:"defaults"`
		}

		if err := yaml.Unmarshal(data, &lintDefaults); err == nil {
			if lintDefaults.Defaults.WatcherPollInterval != "" {
				if d, err := parseInterval(lintDefaults.Defaults.WatcherPollInterval); err == nil {
					workerPollInterval = d
				}
			}
			if lintDefaults.Defaults.ReanalyzeInterval != "" {
				if d, err := parseInterval(lintDefaults.Defaults.ReanalyzeInterval); err == nil {
					reanalyzeInterval = d
				}
			}
		}
	}

	// Use defaults from aaalint.yml, or fall back to hardcoded defaults
	if workerPollInterval == 0 {
		workerPollInterval = 30 * time.Second
	}
	if reanalyzeInterval == 0 {
		reanalyzeInterval = 7 * 24 * time.Hour
	}

	cfg := &Config{
		LintfilePath: lintfilePath,
		Queue: QueueConfig{
			BufferSize: getEnvInt("QUEUE_BUFFER_SIZE", 1000),
		},
		Worker: WorkerConfig{
			PollInterval:  workerPollInterval,
			RetryAttempts: getEnvInt("WORKER_RETRY_ATTEMPTS", 3),
			RetryBackoff:  getEnvDuration("WORKER_RETRY_BACKOFF", 10*time.Second),
			Concurrency:   getEnvInt("WORKER_CONCURRENCY", 3),
		},
		Analyzer: AnalyzerConfig{
			BaseURL:     getEnv("ANALYZER_BASE_URL", DefaultAnalyzerBaseURL),
			APIKey:      getEnv("GEMINI_API_KEY", ""),
			Model:       getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
			Timeout:     getEnvDuration("ANALYZER_TIMEOUT", 2*time.Minute),
			MaxTokens:   getEnvInt("ANALYZER_MAX_TOKENS", 2048),
			Temperature: float32(getEnvInt("ANALYZER_TEMPERATURE_PCT", 20)) / 100,
		},
		StateStore: StateStoreConfig{
			Type:              getEnv("STATE_STORE_TYPE", "sqlite"),
			SQLitePath:        getEnv("SQLITE_PATH", "aaalint.db"),
			ReanalyzeInterval: reanalyzeInterval,
			MaxRecordsPerTest: getEnvInt("MAX_RECORDS_PER_TEST", 20),
		},
		API: APIConfig{
			Enabled:  getEnvBool("API_ENABLED", true),
			Port:     getEnvInt("API_PORT", 8000),
			APIKey:   getEnv("API_KEY", ""),
			ReadOnly: getEnvBool("API_READ_ONLY", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			MetricsPort:     getEnvInt("METRICS_PORT", 9090),
			HealthCheckPort: getEnvInt("HEALTH_CHECK_PORT", 8081),
		},
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.LintfilePath == "" {
		return fmt.Errorf("lintfile path is required")
	}

	if _, err := os.Stat(c.LintfilePath); os.IsNotExist(err) {
		return fmt.Errorf("lintfile not found: %s", c.LintfilePath)
	}

	if c.Analyzer.APIKey == "" {
		return fmt.Errorf("no API key found, set GEMINI_API_KEY or check your .env file")
	}

	if c.Analyzer.BaseURL == "" {
		return fmt.Errorf("analyzer base URL is required")
	}

	if c.Analyzer.Model == "" {
		return fmt.Errorf("analyzer model is required")
	}

	if c.StateStore.Type != "sqlite" && c.StateStore.Type != "memory" {
		return fmt.Errorf("invalid state store type: %s (must be sqlite or memory)", c.StateStore.Type)
	}

	if c.StateStore.Type == "sqlite" && c.StateStore.SQLitePath == "" {
		return fmt.Errorf("sqlite path is required when using sqlite state store")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
