// Package dhtlog provides structured logging for the DHT node core.
// It wraps log/slog so every component logs through the same handler
// and can be tagged with request-scoped identifiers.
package dhtlog

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide DHT-specific logging helpers.
type Logger struct {
	*slog.Logger
}

type contextKey string

const loggerKey contextKey = "dhtlog"

// New creates a new Logger at the given level writing to w.
func New(level slog.Level, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	return &Logger{Logger: slog.New(slog.NewTextHandler(w, opts))}
}

// NewDefault creates a logger with default settings (Info level, stdout).
func NewDefault() *Logger {
	return New(slog.LevelInfo, os.Stdout)
}

// ParseLevel parses a string log level into slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, nil
	}
}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext retrieves the logger from the context, or a default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return NewDefault()
}

// With returns a new Logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a new Logger tagged with a "component" attribute.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Peer returns a new Logger tagged with a short hex prefix of a public key.
func (l *Logger) Peer(pk [32]byte) *Logger {
	return l.With("peer", hex.EncodeToString(pk[:6]))
}

// Packet returns a new Logger tagged with a packet kind name.
func (l *Logger) Packet(kind string) *Logger {
	return l.With("packet", kind)
}

// Tick returns a new Logger tagged with a fresh correlation id for one
// invocation of HandlePacket or Tick, so every log line it emits can be
// grouped together.
func (l *Logger) Tick() *Logger {
	return l.With("tick_id", uuid.NewString())
}
