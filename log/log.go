// Package log holds the process-wide logger. Messages are printf-style and
// carry their component as a "[Component]" prefix.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps a slog.Logger whose level can change at runtime
type Logger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// Log is the global logger. It writes text at info level to stdout until
// Configure is called.
var Log = newLogger(os.Stdout, "text", slog.LevelInfo)

func newLogger(w io.Writer, format string, level slog.Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	return &Logger{logger: slog.New(h), level: lv}
}

// Configure points the global logger at w (stdout when nil) with the given
// format ("text" or "json") and level name.
func Configure(w io.Writer, format, level string) {
	if w == nil {
		w = os.Stdout
	}
	*Log = *newLogger(w, format, ParseLevel(level))
}

// ParseLevel maps debug, warn/warning and error to their slog levels.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Enabled reports whether messages at level are written
func (l *Logger) Enabled(level slog.Level) bool {
	return level >= l.level.Level()
}

// Slog exposes the structured logger for attribute-based records
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

func (l *Logger) logf(level slog.Level, format string, args []any) {
	if !l.Enabled(level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.logger.Log(context.Background(), level, msg)
}

// Debugf logs a debug level message with formatting
func (l *Logger) Debugf(format string, args ...any) {
	l.logf(slog.LevelDebug, format, args)
}

// Infof logs an info level message with formatting
func (l *Logger) Infof(format string, args ...any) {
	l.logf(slog.LevelInfo, format, args)
}

// Warnf logs a warning level message with formatting
func (l *Logger) Warnf(format string, args ...any) {
	l.logf(slog.LevelWarn, format, args)
}

// Errorf logs an error level message with formatting
func (l *Logger) Errorf(format string, args ...any) {
	l.logf(slog.LevelError, format, args)
}
