package envmodules

import "log/slog"

// Logger defines the interface for engine logging.
// The engine uses structured logging with key-value pairs so that hosts can
// route load/unload diagnostics into whatever logging backend they already use.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("Module loaded", "module", "gcc-12.2-x86_64", "refs", 1)
//
// This is compatible with log/slog and with most structured logging libraries.
type Logger interface {
	// Info logs an informational message, e.g. a module becoming resident.
	Info(msg string, args ...any)

	// Error logs an error message, e.g. a failed observer or a failed rollback step.
	Error(msg string, args ...any)

	// Warn logs a warning message, e.g. a skipped optional dependency.
	Warn(msg string, args ...any)

	// Debug logs a debug message, e.g. each search path candidate that was rejected.
	Debug(msg string, args ...any)
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps l. A nil logger falls back to slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// nopLogger discards everything. Used when no logger was configured.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
