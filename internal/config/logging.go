package config

import (
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger: readable text on stderr for the
// operator, JSON appended to the log file so long ingestion runs can be
// inspected afterwards. The returned cleanup closes the file.
//
// An unwritable log file degrades to stderr-only logging instead of
// failing the command.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: level}
	stderr := slog.NewTextHandler(os.Stderr, opts)

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(stderr)
		logger.Warn("log file unavailable, logging to stderr only", "file", logFile, "error", err)
		return logger, func() error { return nil }
	}

	logger := slog.New(slogmulti.Fanout(stderr, slog.NewJSONHandler(file, opts)))
	return logger, file.Close
}
