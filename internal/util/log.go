// Package util provides shared helpers for logging, retries, and rate
// limiting.
package util

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger creates a structured zerolog logger writing JSON to stdout at
// the specified level. Supported levels: "debug", "info", "warn", "error".
// Defaults to "info" if the level string is not recognised.
func NewLogger(level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
