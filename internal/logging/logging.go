// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// New builds a JSON logger at the given level writing to stderr, teeing into
// an append-only file when path is non-empty. The returned cleanup closes
// that file; callers must defer it. The logger is also installed as the slog
// default so package-level slog calls share the sinks.
func New(level, path string) (*slog.Logger, func(), error) {
	out := io.Writer(os.Stderr)
	cleanup := func() {}

	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		cleanup = func() { _ = f.Close() }
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
