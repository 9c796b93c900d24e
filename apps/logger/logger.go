// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package logger provides the structured logger used by the authentication packages.
// It wraps a *slog.Logger supplied by the application.
package logger

import (
	"context"
	"log/slog"
	"os"
)

type Level string

const (
	Info  Level = "info"
	Err   Level = "error"
	Warn  Level = "warn"
	Debug Level = "debug"
)

// Logger logs through slog with the levels above.
type Logger struct {
	logging *slog.Logger
}

// New creates a new logger instance. A default logger writing warnings and errors to stderr
// is used if slogLogger is nil.
func New(slogLogger *slog.Logger) *Logger {
	if slogLogger == nil {
		slogLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return &Logger{logging: slogLogger}
}

// With returns a Logger that adds fields to every entry.
func (a *Logger) With(fields ...any) *Logger {
	if a == nil || a.logging == nil {
		return a
	}
	return &Logger{logging: a.logging.With(fields...)}
}

// Log writes message at level with the structured fields.
func (a *Logger) Log(ctx context.Context, level Level, message string, fields ...any) {
	if a == nil || a.logging == nil {
		return
	}
	var slogLevel slog.Level
	switch level {
	case Info:
		slogLevel = slog.LevelInfo
	case Err:
		slogLevel = slog.LevelError
	case Warn:
		slogLevel = slog.LevelWarn
	case Debug:
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	a.logging.Log(ctx, slogLevel, message, fields...)
}

// Field creates a slog field for any value
func Field(key string, value any) any {
	return slog.Any(key, value)
}
