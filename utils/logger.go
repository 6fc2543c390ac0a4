package utils

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// DefaultOutputPaths is used when no output paths are configured.
var DefaultOutputPaths = []string{"stdout", "backrunner.log"}

// NewLogger builds a JSON logger writing to outputPaths, or to
// DefaultOutputPaths when none are given. Internal zap errors go to stderr.
func NewLogger(debug bool, outputPaths ...string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	if len(outputPaths) == 0 {
		outputPaths = DefaultOutputPaths
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = outputPaths
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// InitLogger sets the process-wide logger on first use. Later calls return
// the first logger unchanged, whatever their arguments.
func InitLogger(debug bool, outputPaths ...string) *zap.Logger {
	once.Do(func() {
		logger, err := NewLogger(debug, outputPaths...)
		if err != nil {
			panic(err)
		}
		log = logger
	})

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
