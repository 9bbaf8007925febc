// Package logger wraps log/slog with dagline's structured-field
// conventions (execution_id, node_id, node_type).
package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/dagline/dagline/internal/config"
)

// Logger wraps slog.Logger.
type Logger struct {
	logger *slog.Logger
}

// New builds a Logger per cfg, selecting a JSON or text handler.
func New(cfg config.LoggingConfig) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.Level == "debug"}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return &Logger{logger: slog.New(handler)}
}

// With returns a Logger carrying additional structured fields.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// WithExecution scopes a Logger to one execution, the field every
// scheduler/checkpoint/executor log line carries.
func (l *Logger) WithExecution(executionID string) *Logger {
	return l.With("execution_id", executionID)
}

// WithNode further scopes to one node within that execution.
func (l *Logger) WithNode(nodeID, nodeType string) *Logger {
	return l.With("node_id", nodeID, "node_type", nodeType)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.logger.Error(msg, args...) }

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...interface{}) {
	l.logger.InfoContext(ctx, msg, args...)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...interface{}) {
	l.logger.ErrorContext(ctx, msg, args...)
}

func parseLevel(level string) slog.Level {
	switch level {
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

var defaultLogger = New(config.LoggingConfig{Level: "info", Format: "json"})

// Default returns the package-level logger used before a Config is
// loaded (e.g. by init-time code paths).
func Default() *Logger { return defaultLogger }

// SetDefault replaces the package-level logger, called once at
// startup after config.Load succeeds.
func SetDefault(l *Logger) { defaultLogger = l }
