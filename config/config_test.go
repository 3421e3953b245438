package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	t.Setenv("BEUNREAL_CONFIG", p)
}

func TestLoad_Defaults(t *testing.T) {
	writeConfig(t, "log:\n  level: debug\n")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "pebble", cfg.Store.Driver)
	assert.Equal(t, "hybrid", cfg.App.Mode)
	assert.Equal(t, 24*time.Hour, cfg.App.StoryTTL)
	assert.Equal(t, int64(10*1024*1024), cfg.App.MaxMediaSize)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Sync.MaxBackoff)
	assert.Equal(t, "12:00", cfg.App.DefaultNotificationTime)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	writeConfig(t, `
store:
  driver: memory
sync:
  base_backoff: 500ms
app:
  mode: offline
`)
	t.Setenv("BEUNREAL_API_BASE_URL", "http://127.0.0.1:9999")
	t.Setenv("BEUNREAL_SYNC_MAX_ATTEMPTS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.BaseBackoff)
	assert.Equal(t, "offline", cfg.App.Mode)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.API.BaseURL)
	assert.Equal(t, 2, cfg.Sync.MaxAttempts)
}

func TestLoad_Invalid(t *testing.T) {
	writeConfig(t, "app:\n  mode: turbo\n")
	_, err := Load()
	assert.ErrorContains(t, err, "app.mode")

	writeConfig(t, "store:\n  driver: mongo\n")
	_, err = Load()
	assert.ErrorContains(t, err, "store.driver")
}
