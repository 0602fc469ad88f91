// Package logging provides the structured logger used by the import and
// export engines. It wraps logrus so callers get a small, context aware
// API and a no-op default.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel represents different logging levels.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Operation names attached to log lines with WithOperation.
const (
	OpCreate = "create"
	OpBuild  = "build"
	OpLoad   = "load"
	OpImport = "import"
	OpExport = "export"
)

// Logger provides structured logging. A nil *Logger and the zero value are
// both safe to use and discard everything.
type Logger struct {
	entry *logrus.Entry
}

// LogConfig holds configuration for NewLogger.
type LogConfig struct {
	// Level sets the minimum log level.
	Level LogLevel
	// Format is "text" or "json".
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// EnableCallerInfo includes file and line number in logs.
	EnableCallerInfo bool
}

// DefaultLogConfig returns a default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  LogLevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// NewLogger creates a logrus backed logger with the given configuration.
func NewLogger(config LogConfig) *Logger {
	l := logrus.New()
	l.SetLevel(toLogrusLevel(config.Level))
	l.SetReportCaller(config.EnableCallerInfo)

	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	if strings.EqualFold(config.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}

	return &Logger{entry: logrus.NewEntry(l)}
}

// NewNopLogger creates a logger that discards all log messages.
func NewNopLogger() *Logger {
	return &Logger{}
}

// Debug logs debug-level messages with alternating key/value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.DebugLevel, msg, args)
}

// Info logs info-level messages.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.InfoLevel, msg, args)
}

// Warn logs warning-level messages.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.WarnLevel, msg, args)
}

// Error logs error-level messages.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.ErrorLevel, msg, args)
}

// With returns a logger with additional context fields.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.entry == nil {
		return l
	}
	return &Logger{entry: l.entry.WithFields(fields(args))}
}

// WithOperation returns a logger with operation context.
func (l *Logger) WithOperation(operation string) *Logger {
	return l.With("operation", operation)
}

// WithEntity returns a logger tagged with an entity's fully-qualified name.
func (l *Logger) WithEntity(fullName string) *Logger {
	return l.With("entity", fullName)
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	if l == nil || l.entry == nil {
		return false
	}
	return l.entry.Logger.IsLevelEnabled(toLogrusLevel(level))
}

func (l *Logger) log(ctx context.Context, level logrus.Level, msg string, args []any) {
	if l == nil || l.entry == nil {
		return
	}
	entry := l.entry
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	if len(args) > 0 {
		entry = entry.WithFields(fields(args))
	}
	entry.Log(level, msg)
}

// fields converts alternating key/value pairs into logrus fields. A trailing
// key without a value is recorded under "!BADKEY".
func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			f["!BADKEY"] = args[i]
			break
		}
		f[fmt.Sprint(args[i])] = args[i+1]
	}
	return f
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLogLevel parses a string log level into LogLevel.
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}
