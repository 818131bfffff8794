package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	// GOAL: Verify the struct defaults populate every field.

	cfg := Default()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanDuration)
	assert.False(t, cfg.AllowDuplicates)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 128, cfg.EventBuffer)
	assert.Equal(t, "table", cfg.OutputFormat)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	// GOAL: Verify YAML overrides land on top of the defaults and invalid
	// values are rejected.

	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("partial override keeps other defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nscan_duration: 3s\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 3*time.Second, cfg.ScanDuration)
		assert.Equal(t, 128, cfg.EventBuffer, "unset fields MUST keep defaults")
	})

	t.Run("invalid log level is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: shout\n"), 0o644))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("malformed yaml is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(":\n\t- nope"), 0o644))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	// GOAL: Verify the logger honors the configured level.

	cfg := Default()
	cfg.LogLevel = "warn"
	assert.Equal(t, logrus.WarnLevel, cfg.NewLogger().GetLevel())

	cfg.LogLevel = "bogus"
	assert.Equal(t, logrus.InfoLevel, cfg.NewLogger().GetLevel(), "unparseable level MUST fall back to info")
}
