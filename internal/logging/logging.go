// Package logging builds the zap loggers used across hackops and adapts them
// to the logr and retryablehttp logging interfaces.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level enumerates supported logging granularities
type Level string

// Supported levels
const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format enumerates supported logger output encodings
type Format string

// Supported formats
const (
	FormatStructured Format = "structured"
	FormatConsole    Format = "console"
)

var levelMapping = map[Level]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

var formatEncoding = map[Format]string{
	FormatStructured: "json",
	FormatConsole:    "console",
}

// Factory builds zap.Logger instances with consistent configuration
type Factory struct{}

// NewFactory constructs a logger factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create produces a logger honoring the requested level and format
func (f *Factory) Create(level Level, format Format) (*zap.Logger, error) {
	zapLevel, ok := levelMapping[level]
	if !ok {
		return nil, fmt.Errorf("unsupported log level: %s", level)
	}

	encoding, ok := formatEncoding[format]
	if !ok {
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.Encoding = encoding
	if format == FormatConsole {
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true
	}

	return cfg.Build()
}

// NewRunID returns a fresh identifier attached to every log line of one run
func NewRunID() string {
	return uuid.NewString()
}

// WithRun tags logger with the run and command names
func WithRun(logger *zap.Logger, runID, command string) *zap.Logger {
	return logger.With(zap.String("run_id", runID), zap.String("command", command))
}

// Logr bridges a zap logger to logr for clients that take a logr.Logger
func Logr(logger *zap.Logger) logr.Logger {
	return zapr.NewLogger(logger)
}

// leveledLogger adapts logr to retryablehttp.LeveledLogger
type leveledLogger struct {
	log logr.Logger
}

// NewLeveledLogger returns a retryablehttp logger writing through log.
// Request tracing goes to V(1) so it only shows at debug level.
func NewLeveledLogger(log logr.Logger) retryablehttp.LeveledLogger {
	return &leveledLogger{log: log}
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error(nil, msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.V(1).Info(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.V(1).Info(msg, keysAndValues...)
}
