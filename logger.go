package zenith

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with zenith-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithTier adds a precision tier field to the logger.
func (l *Logger) WithTier(tier string) *Logger {
	return &Logger{
		Logger: l.Logger.With("tier", tier),
	}
}

// WithEpoch adds a Julian day epoch field to the logger.
func (l *Logger) WithEpoch(jd float64) *Logger {
	return &Logger{
		Logger: l.Logger.With("epoch", jd),
	}
}

// LogBuild logs a kernel build.
func (l *Logger) LogBuild(ctx context.Context, tier string, epoch float64, failures int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"tier", tier,
			"epoch", epoch,
			"error", err,
		)
		return
	}
	if failures > 0 {
		l.WarnContext(ctx, "build completed with failed bodies",
			"tier", tier,
			"epoch", epoch,
			"failures", failures,
			"duration", duration,
		)
	} else {
		l.InfoContext(ctx, "build completed",
			"tier", tier,
			"epoch", epoch,
			"duration", duration,
		)
	}
}

// LogSearch logs a reconstruction lookup.
func (l *Logger) LogSearch(ctx context.Context, jd float64, source string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "lookup failed",
			"jd", jd,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "lookup completed",
			"jd", jd,
			"source", source,
		)
	}
}

// LogVerify logs a verification run.
func (l *Logger) LogVerify(ctx context.Context, checks int, worst float64, passed bool, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "verify failed",
			"error", err,
		)
	case !passed:
		l.WarnContext(ctx, "verify found tolerance breaches",
			"checks", checks,
			"worst_error", worst,
		)
	default:
		l.InfoContext(ctx, "verify passed",
			"checks", checks,
			"worst_error", worst,
		)
	}
}

// LogPublish logs a kernel publication.
func (l *Logger) LogPublish(ctx context.Context, name string, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "publish failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "kernel published",
			"name", name,
			"bytes", size,
		)
	}
}
