package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashplayd/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 64<<20, cfg.SinkQuotaBytes)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
	assert.Equal(t, 128<<20, cfg.CacheMaxBytes)
	assert.Equal(t, 1000*time.Millisecond, cfg.QuotaBackoff)
	assert.Equal(t, 200*time.Millisecond, cfg.PaceInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.ClockInterval)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLAYERD_LISTEN", ":9090")
	t.Setenv("PLAYERD_LOG_LEVEL", "debug")
	t.Setenv("PLAYERD_PLAYER_QUOTA_BACKOFF", "250ms")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.QuotaBackoff)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":7070"
log:
  format: text
sink:
  quota_bytes: 1048576
player:
  pace_interval: 50ms
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 1<<20, cfg.SinkQuotaBytes)
	assert.Equal(t, 50*time.Millisecond, cfg.PaceInterval)
	assert.Equal(t, "info", cfg.LogLevel, "unset file keys keep their defaults")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
