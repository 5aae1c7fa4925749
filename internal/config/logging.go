package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// ParseLogLevel parses a log level string. Unknown values map to error.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "warn", "warning":
		return LogLevelWarn
	case "info":
		return LogLevelInfo
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	case LogLevelError:
		return "error"
	default:
		return "error"
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelInfo:
		return logrus.InfoLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelOff, LogLevelError:
		return logrus.ErrorLevel
	default:
		return logrus.ErrorLevel
	}
}

// Logger writes leveled, timestamped lines to a log file.
// A Logger at LogLevelOff or without a file discards everything.
type Logger struct {
	mu    sync.Mutex
	level LogLevel
	entry *logrus.Logger
	file  *os.File
}

// NewLogger creates a logger writing to filePath ("~/" is expanded).
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	l := &Logger{level: level}
	if level == LogLevelOff || filePath == "" {
		return l, nil
	}

	filePath = ExpandHome(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	l.file = f
	l.entry = newLogrus(f, level)
	return l, nil
}

// NewWriterLogger creates a logger writing to w. Used by tests and by
// commands that want logs on stderr.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	l := &Logger{level: level}
	if level != LogLevelOff && w != nil {
		l.entry = newLogrus(w, level)
	}
	return l
}

func newLogrus(w io.Writer, level LogLevel) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(w)
	lg.SetLevel(level.logrus())
	lg.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return lg
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{level: LogLevelOff}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.entry = nil
		return err
	}
	return nil
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	if l.entry != nil {
		l.entry.SetLevel(level.logrus())
	}
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LogLevelInfo, format, args...)
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LogLevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level == LogLevelOff || level > l.level || l.entry == nil {
		return
	}

	switch level {
	case LogLevelDebug:
		l.entry.Debugf(format, args...)
	case LogLevelInfo:
		l.entry.Infof(format, args...)
	case LogLevelWarn:
		l.entry.Warnf(format, args...)
	case LogLevelError, LogLevelOff:
		l.entry.Errorf(format, args...)
	}
}

// Writer returns an io.Writer that logs each write at level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.logger.log(w.level, "%s", strings.TrimSpace(string(p)))
	return len(p), nil
}
