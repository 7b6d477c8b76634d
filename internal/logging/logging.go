// Package logging provides structured logging capabilities using slog.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// global logger instances, initialized in Init()
var (
	structuredLogger    *slog.Logger
	humanReadableLogger *slog.Logger
	loggerMu            sync.RWMutex
)

// currentLogLevel stores the dynamic level for all loggers
var currentLogLevel = new(slog.LevelVar)
var initOnce sync.Once
var initialized bool

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// defaultReplaceAttr provides common attribute formatting for all loggers.
// It formats time to second precision, customizes level names, and truncates
// floats to 2 decimal places.
func defaultReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	}
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			levelLabel, exists := levelNames[level]
			if !exists {
				levelLabel = level.String()
			}
			a.Value = slog.StringValue(levelLabel)
		} else {
			a.Value = slog.StringValue(fmt.Sprintf("%v", a.Value.Any()))
		}
	}
	if a.Value.Kind() == slog.KindFloat64 {
		truncatedVal := math.Trunc(a.Value.Float64()*100) / 100.0
		a.Value = slog.Float64Value(truncatedVal)
	}
	return a
}

// Options controls where Init sends log output.
type Options struct {
	// Directory for the rotated JSON log file. Empty disables file output.
	LogDir string
	// FileName of the JSON log inside LogDir. Defaults to "analyzer.log".
	FileName string
	// MaxSizeMB is the rotation threshold for the JSON log file.
	MaxSizeMB int
	// Level is the initial log level.
	Level slog.Level
}

// Init initializes the global loggers. It sets up a structured (JSON) logger
// backed by a rotated file and a human-readable (Text) logger on stdout.
// Safe to call more than once; only the first call takes effect.
func Init(opts Options) {
	initOnce.Do(func() {
		currentLogLevel.Set(opts.Level)

		structuredOut := os.Stderr
		if opts.LogDir != "" {
			if err := os.MkdirAll(opts.LogDir, 0o755); err == nil {
				fileName := opts.FileName
				if fileName == "" {
					fileName = "analyzer.log"
				}
				maxSize := opts.MaxSizeMB
				if maxSize <= 0 {
					maxSize = 100
				}
				lj := &lumberjack.Logger{
					Filename:   filepath.Join(opts.LogDir, fileName),
					MaxSize:    maxSize,
					MaxBackups: 3,
					MaxAge:     28,
				}
				structuredHandler := slog.NewJSONHandler(lj, &slog.HandlerOptions{
					Level:       currentLogLevel,
					ReplaceAttr: defaultReplaceAttr,
				})
				humanReadableHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
					Level:       currentLogLevel,
					ReplaceAttr: defaultReplaceAttr,
				})
				loggerMu.Lock()
				structuredLogger = slog.New(structuredHandler)
				humanReadableLogger = slog.New(humanReadableHandler)
				loggerMu.Unlock()
				slog.SetDefault(structuredLogger)
				initialized = true
				return
			}
			fmt.Fprintf(os.Stderr, "failed to create log directory %s, falling back to stderr\n", opts.LogDir)
		}

		structuredHandler := slog.NewJSONHandler(structuredOut, &slog.HandlerOptions{
			Level:       currentLogLevel,
			ReplaceAttr: defaultReplaceAttr,
		})
		humanReadableHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       currentLogLevel,
			ReplaceAttr: defaultReplaceAttr,
		})
		loggerMu.Lock()
		structuredLogger = slog.New(structuredHandler)
		humanReadableLogger = slog.New(humanReadableHandler)
		loggerMu.Unlock()
		slog.SetDefault(structuredLogger)
		initialized = true
	})
}

// IsInitialized returns true if the logging system has been initialized
func IsInitialized() bool {
	return initialized
}

// SetLevel changes the logging level for all initialized loggers.
func SetLevel(level slog.Level) {
	currentLogLevel.Set(level)
}

// Structured returns the globally configured structured (JSON) logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return structuredLogger
}

// HumanReadable returns the globally configured human-readable (Text) logger.
// Returns nil if Init() has not been called.
func HumanReadable() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return humanReadableLogger
}

// ForService creates a new logger instance with the 'service' attribute added.
// It uses the global structured logger as the base. Returns nil if Init()
// has not been called.
func ForService(serviceName string) *slog.Logger {
	loggerMu.RLock()
	logger := structuredLogger
	loggerMu.RUnlock()

	if logger == nil {
		return nil
	}
	return logger.With("service", serviceName)
}

// --- Convenience functions using the default logger ---

// Debug logs a debug message using the default slog logger.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs an info message using the default slog logger.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Warn logs a warning message using the default slog logger.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs an error message using the default slog logger.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// Fatal logs a fatal message using the custom Fatal level and then exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs a trace message using the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}
