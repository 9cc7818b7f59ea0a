package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"
)

const logFilePath = "logs/medical_imaging_system.log"

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func newConsoleHandler(w io.Writer, level slog.Level, noColor bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    noColor,
	})
}

// newLogHandler writes colored records to the console and plain text to file
func newLogHandler(console slog.Handler, file io.Writer, level slog.Level) slog.Handler {
	return slog.NewMultiHandler(
		console,
		slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}),
	)
}

// setupLogging logs colored output to stderr and plain text to the log file.
// The returned closer closes the log file.
func setupLogging() (io.Closer, error) {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	console := newConsoleHandler(os.Stderr, level, false)

	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		slog.SetDefault(slog.New(console))
		return io.NopCloser(nil), fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.SetDefault(slog.New(console))
		return io.NopCloser(nil), fmt.Errorf("failed to open log file: %w", err)
	}

	slog.SetDefault(slog.New(newLogHandler(console, file, level)))
	return file, nil
}
