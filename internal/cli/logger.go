// Package cli holds the plumbing shared by the command-line tools: logging,
// password prompting, console styling, and configuration glue.
package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// SetupLogger returns a JSON logger writing to logFilePath, or to stderr when
// the path is empty or cannot be opened. Every record carries the run_id of
// this invocation.
func SetupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
		}
		// The logger is not set up yet, so a failed open silently falls back to stderr.
	}

	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: ParseLevel(level)})).
		With("run_id", uuid.NewString())
}

func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
