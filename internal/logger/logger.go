// Package logger provides the process-wide zap logger and a logr bridge for
// context-scoped logging.
package logger

import (
	"context"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	sugared = base.Sugar()
)

// ParseLevel maps a textual level onto a zap level. Unknown values yield info.
func ParseLevel(level string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info", "":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// Initialize builds the process logger. Debug mode switches to the human-readable
// console encoder. Logs go to stderr so stdout stays clean for command output.
func Initialize(level zapcore.Level, debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set replaces the process logger
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugared = l.Sugar()
}

// Get returns the process logger
func Get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugared
}

// Logr returns a logr.Logger backed by the process logger
func Logr() logr.Logger {
	return zapr.NewLogger(Get())
}

// NewContext returns a context carrying the process logger as a logr.Logger
func NewContext(ctx context.Context) context.Context {
	return logr.NewContext(ctx, Logr())
}

// FromContext returns the logger carried by ctx, or the process logger
func FromContext(ctx context.Context) logr.Logger {
	if l, err := logr.FromContext(ctx); err == nil {
		return l
	}
	return Logr()
}

// Sync flushes buffered log entries
func Sync() {
	_ = Get().Sync()
}

// Debugf logs a formatted debug message
func Debugf(template string, args ...any) { sugar().Debugf(template, args...) }

// Infof logs a formatted info message
func Infof(template string, args ...any) { sugar().Infof(template, args...) }

// Warnf logs a formatted warning
func Warnf(template string, args ...any) { sugar().Warnf(template, args...) }

// Errorf logs a formatted error
func Errorf(template string, args ...any) { sugar().Errorf(template, args...) }

// Infow logs a message with structured key/value pairs
func Infow(msg string, keysAndValues ...any) { sugar().Infow(msg, keysAndValues...) }

// Warnw logs a warning with structured key/value pairs
func Warnw(msg string, keysAndValues ...any) { sugar().Warnw(msg, keysAndValues...) }

// Errorw logs an error with structured key/value pairs
func Errorw(msg string, keysAndValues ...any) { sugar().Errorw(msg, keysAndValues...) }
