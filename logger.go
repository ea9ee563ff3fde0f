package interndir

import (
	"log/slog"
	"os"

	"golang.org/x/time/rate"
)

// Logger wraps slog.Logger with interndir-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger

	// evictions throttles per-entry eviction logs, which fire on every
	// intern into a full tier.
	evictions *rate.Limiter
}

// Eviction logs are limited to this many per second, with the same burst.
const evictionLogRate = 10

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return newLogger(slog.New(handler))
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return newLogger(slog.New(handler))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return newLogger(slog.New(handler))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return newLogger(slog.New(slog.DiscardHandler))
}

func newLogger(l *slog.Logger) *Logger {
	return &Logger{
		Logger:    l,
		evictions: rate.NewLimiter(evictionLogRate, evictionLogRate),
	}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		evictions: l.evictions,
	}
}

// WithOwner adds an owner field to the logger.
func (l *Logger) WithOwner(owner Owner) *Logger {
	return l.with("owner", owner)
}

// WithTier adds a tier field to the logger.
func (l *Logger) WithTier(tier Tier) *Logger {
	return l.with("tier", tier.String())
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return l.with("count", count)
}

// LogPromotion logs a local entry moving to the shared tier.
func (l *Logger) LogPromotion(data []byte, weight uint16, displaced bool, err error) {
	if err != nil {
		l.Debug("promotion failed, entry stays local",
			"length", len(data),
			"weight", weight,
			"error", err,
		)
		return
	}
	l.Debug("entry promoted",
		"length", len(data),
		"weight", weight,
		"displaced_tail", displaced,
	)
}

// LogEviction logs an entry leaving a tier to make room. Calls beyond the
// eviction log rate are dropped.
func (l *Logger) LogEviction(tier Tier, data []byte, weight uint16) {
	if !l.evictions.Allow() {
		return
	}
	l.Debug("entry evicted",
		"tier", tier.String(),
		"length", len(data),
		"weight", weight,
	)
}

// LogSweep logs a dead-owner sweep.
func (l *Logger) LogSweep(removed, remaining int) {
	l.Info("dead owner sweep completed",
		"removed", removed,
		"remaining", remaining,
	)
}

// LogCorruption logs a failed consistency check.
func (l *Logger) LogCorruption(component string, err error) {
	l.Error("consistency check failed",
		"component", component,
		"error", err,
	)
}
