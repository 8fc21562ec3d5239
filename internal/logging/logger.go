package logging

import (
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	EnvLogLevel = "TANGLE_LOG_LEVEL"
	EnvJSONLog  = "TANGLE_JSON_LOG"
)

// NewLogger creates a new hclog logger with standard settings.
// An empty level falls back to GetLogLevel.
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}
	if level == "" {
		level = GetLogLevel()
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: os.Getenv(EnvJSONLog) == "1",
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z", // UTC ISO format
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// GetLogLevel returns the configured log level from environment
func GetLogLevel() string {
	level := os.Getenv(EnvLogLevel)
	if level == "" {
		level = "warn"
	}
	return level
}
