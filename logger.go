package dkmeans

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with dkmeans-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRank adds the worker rank to the logger.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", rank),
	}
}

// WithK adds the centroid count to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// LogIteration logs a finished iteration.
func (l *Logger) LogIteration(ctx context.Context, iteration int, movement float64, empty int, elapsed time.Duration) {
	if empty > 0 {
		l.WarnContext(ctx, "iteration completed with empty clusters",
			"iteration", iteration,
			"movement", movement,
			"empty_clusters", empty,
			"elapsed", elapsed,
		)
	} else {
		l.DebugContext(ctx, "iteration completed",
			"iteration", iteration,
			"movement", movement,
			"elapsed", elapsed,
		)
	}
}

// LogReduce logs a global reduction.
func (l *Logger) LogReduce(ctx context.Context, iteration int, total uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reduce failed",
			"iteration", iteration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "reduce completed",
			"iteration", iteration,
			"points", total,
		)
	}
}

// LogTermination logs the end of a run.
func (l *Logger) LogTermination(ctx context.Context, reason State, iterations int, movement float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "run aborted",
			"iterations", iterations,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "run terminated",
			"reason", reason.String(),
			"iterations", iterations,
			"movement", movement,
		)
	}
}
