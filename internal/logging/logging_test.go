package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/faize-ai/hostguard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.Log{Level: "warn", Format: "console"}, false, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestNewLoggerDebugOverride(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.Log{Level: "error"}, true, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("spawned", zap.Int("pid", 42))
	assert.Contains(t, buf.String(), "spawned")
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.Log{Level: "info", Format: "json"}, false, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("run finished", zap.String("reason", "exit"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run finished", entry["msg"])
	assert.Equal(t, "exit", entry["reason"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewLoggerInvalid(t *testing.T) {
	_, err := New(config.Log{Level: "chatty"}, false)
	assert.Error(t, err)

	_, err = New(config.Log{Format: "xml"}, false)
	assert.Error(t, err)
}
