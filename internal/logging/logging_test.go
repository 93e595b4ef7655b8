package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "taskboard.log")
	logger, err := New(path, "info")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("session stored", zap.String("user_id", "7"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"session stored"`)
	assert.Contains(t, string(data), `"user_id":"7"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "x.log"), "chatty")
	assert.Error(t, err)
}

func TestEmptyPathDiscards(t *testing.T) {
	logger, err := New("", "debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
