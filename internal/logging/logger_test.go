package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bookflow/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	appCfg := config.AppConfig{
		Name:        "test-app",
		Environment: "test",
		Version:     "1.0.0",
	}
	tenantCfg := config.TenantConfig{Vertical: "table_reservation"}

	t.Run("DefaultStdout", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "info", Output: "stdout"}
		logger, closer, err := New(cfg, appCfg, tenantCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("Stderr", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "debug", Output: "stderr"}
		logger, closer, err := New(cfg, appCfg, tenantCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("Console", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "warn", Output: "stdout", Format: "console"}
		logger, closer, err := New(cfg, appCfg, tenantCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("File", func(t *testing.T) {
		tmpDir := t.TempDir()
		logPath := filepath.Join(tmpDir, "test.log")
		cfg := config.LoggingConfig{Level: "error", Output: "file", FilePath: logPath}
		logger, closer, err := New(cfg, appCfg, tenantCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NotNil(t, closer)

		logger.Error().Msg("boom")
		closer.Close()

		raw, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(raw), `"vertical":"table_reservation"`))
		assert.True(t, strings.Contains(string(raw), `"app":"test-app"`))
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		cfg := config.LoggingConfig{Output: "file", FilePath: ""}
		_, _, err := New(cfg, appCfg, tenantCfg)
		assert.Error(t, err)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "invalid"}
		logger, _, err := New(cfg, appCfg, tenantCfg)
		require.NoError(t, err) // Should default to info
		assert.NotNil(t, logger)
	})

	t.Run("EmptyVertical", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "info"}
		logger, _, err := New(cfg, appCfg, config.TenantConfig{})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})
}
