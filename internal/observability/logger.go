// Package observability provides structured logging and metrics collection.
//
// Logger wraps log/slog with the bot name and message context fields.
// Metrics exposes query, command and transport counters to Prometheus.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger wraps slog with persistent bot context.
type Logger struct {
	mu     sync.RWMutex
	inner  *slog.Logger
	bot    string
	fields []slog.Attr
}

// NewLogger creates a structured JSON logger at debug level.
// Output defaults to os.Stderr if w is nil.
func NewLogger(botName string, w io.Writer) *Logger {
	return NewLoggerWithLevel(botName, w, slog.LevelDebug)
}

// NewLoggerWithLevel creates a structured JSON logger that drops records
// below level.
func NewLoggerWithLevel(botName string, w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		inner: slog.New(handler),
		bot:   botName,
	}
}

// NewLoggerWithHandler creates a logger with a custom slog handler.
func NewLoggerWithHandler(botName string, h slog.Handler) *Logger {
	return &Logger{
		inner: slog.New(h),
		bot:   botName,
	}
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return NewLogger("discard", io.Discard)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// An empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// With returns a new Logger with additional persistent fields.
func (l *Logger) With(key string, value any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		inner:  l.inner.With(slog.Any(key, value)),
		bot:    l.bot,
		fields: append(l.fields, slog.Any(key, value)),
	}
}

// attrs prepends the bot name to the arguments.
func (l *Logger) attrs(msg string, args []any) (string, []any) {
	return msg, append([]any{slog.String("bot", l.bot)}, args...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Debug(msg, args...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Info(msg, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Warn(msg, args...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Error(msg, args...)
}

// Incoming logs a message received from a channel.
func (l *Logger) Incoming(channel, sender, text string, args ...any) {
	allArgs := append([]any{
		slog.String("bot", l.bot),
		slog.String("channel", channel),
		slog.String("sender", sender),
		slog.String("text", text),
	}, args...)
	l.inner.Info("incoming message", allArgs...)
}

// Command logs the outcome of a chat command.
func (l *Logger) Command(name, sender string, args ...any) {
	allArgs := append([]any{
		slog.String("bot", l.bot),
		slog.String("command", name),
		slog.String("sender", sender),
	}, args...)
	l.inner.Info("command", allArgs...)
}

// BotName returns the bot name associated with this logger.
func (l *Logger) BotName() string {
	return l.bot
}
