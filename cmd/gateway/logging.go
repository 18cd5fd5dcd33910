package main

import (
	"log/slog"
	"os"
)

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug",
	})

	return slog.New(handler).With(
		"service", "mottomesh-gateway",
		"version", Version,
		"pid", os.Getpid(),
	)
}
