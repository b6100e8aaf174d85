package types

import "log/slog"

// Logger is the minimal structured logging interface used across the
// codebase. *slog.Logger satisfies the first three methods but its With
// returns *slog.Logger, so SlogLogger adapts it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// SlogLogger adapts *slog.Logger to the Logger interface.
type SlogLogger struct {
	L *slog.Logger
}

// NewSlogLogger wraps an *slog.Logger. A nil argument falls back to
// slog.Default.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{L: l}
}

func (a *SlogLogger) Debug(msg string, args ...any) { a.L.Debug(msg, args...) }
func (a *SlogLogger) Info(msg string, args ...any)  { a.L.Info(msg, args...) }
func (a *SlogLogger) Warn(msg string, args ...any)  { a.L.Warn(msg, args...) }
func (a *SlogLogger) Error(msg string, args ...any) { a.L.Error(msg, args...) }
func (a *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{L: a.L.With(args...)}
}

// ParseLevel parses a log level name ("debug", "info", "warn", "error"),
// falling back to info on anything unrecognized.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
