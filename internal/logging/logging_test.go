package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFactoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		level       Level
		format      Format
		expectError string
		enabled     zapcore.Level
	}{
		{name: "debug console", level: LevelDebug, format: FormatConsole, enabled: zapcore.DebugLevel},
		{name: "warn structured", level: LevelWarn, format: FormatStructured, enabled: zapcore.WarnLevel},
		{name: "unknown level", level: "trace", format: FormatConsole, expectError: "unsupported log level: trace"},
		{name: "unknown format", level: LevelInfo, format: "xml", expectError: "unsupported log format: xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewFactory().Create(tt.level, tt.format)
			if tt.expectError != "" {
				require.EqualError(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.enabled-1))
		})
	}
}

func TestWithRun(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	runID := NewRunID()

	WithRun(zap.New(core), runID, "sync").Info("started")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, runID, fields["run_id"])
	assert.Equal(t, "sync", fields["command"])
	assert.Len(t, runID, 36)
}

func TestLeveledLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	leveled := NewLeveledLogger(Logr(zap.New(core)))

	leveled.Debug("request", "method", "GET")
	leveled.Info("retrying", "attempt", 1)
	leveled.Warn("slow response")
	leveled.Error("giving up", "url", "https://example.com")

	entries := logs.All()
	require.Len(t, entries, 2, "debug and info are only visible below info level")
	assert.Equal(t, "slow response", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "https://example.com", entries[1].ContextMap()["url"])
}
