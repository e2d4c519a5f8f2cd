package observability

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// NewLogger creates the service-wide slog.Logger: JSON output on stdout,
// UTC RFC3339Nano timestamps, and a service attribute on every record so
// aaalint lines are filterable when logs are aggregated.
func NewLogger(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   a.Key,
					Value: slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano)),
				}
			}
			return a
		},
	})

	return slog.New(handler).With("service", "aaalint")
}

// parseLevel maps a LOG_LEVEL string to a slog level, defaulting to info
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
