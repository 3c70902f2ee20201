// Package telemetry centralizes zerolog setup so every component logs with
// the same timestamp/level conventions, mirroring the
// `.With().Str("component", ...).Logger()` chaining the teacher uses in
// internal/orders/position_tracker.go and internal/api/handlers_trade_lifecycle.go.
package telemetry

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the base logger for the process. level accepts the same
// strings as the teacher's LoggingConfig.Level ("debug", "info", "warn",
// "error"); jsonOutput false renders a human-readable console writer for
// local runs.
func New(level string, jsonOutput bool) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stdout
	if !jsonOutput {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	return logger.Level(parseLevel(level))
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the given component name.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
