package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/config"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeYAML(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "ws://127.0.0.1:8765/ws", cfg.Session.URL)
	assert.Equal(t, time.Second, cfg.Session.ReconnectInterval())
	assert.Equal(t, 30*time.Second, cfg.Session.MaxReconnectInterval())
	assert.InDelta(t, 1.5, cfg.Session.ReconnectDecay, 1e-9)
	assert.Equal(t, 10, cfg.Session.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.Session.HeartbeatInterval())
	assert.Equal(t, 10*time.Second, cfg.Session.HeartbeatTimeout())
	assert.Equal(t, 30*time.Second, cfg.Session.RequestTimeout())
	assert.Equal(t, 5*time.Second, cfg.Alerts.AsyncTimeout())
	assert.Equal(t, 100, cfg.Alerts.HistoryLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_ValuesFromFile(t *testing.T) {
	cfg, err := config.Load(writeYAML(t, `
session:
  url: ws://engine:9000/ws
  reconnect_interval_ms: 250
  max_reconnect_attempts: 3
alerts:
  async_timeout_ms: 1500
  sound: true
storage:
  dsn: off
`))
	require.NoError(t, err)

	assert.Equal(t, "ws://engine:9000/ws", cfg.Session.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.ReconnectInterval())
	assert.Equal(t, 3, cfg.Session.MaxReconnectAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.Alerts.AsyncTimeout())
	assert.True(t, cfg.Alerts.Sound)
	assert.False(t, cfg.Storage.CacheEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AEGIS_WS_URL", "ws://override:1/ws")
	t.Setenv("AEGIS_DB", ":memory:")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Load(writeYAML(t, "session:\n  url: ws://file/ws\n"))
	require.NoError(t, err)
	assert.Equal(t, "ws://override:1/ws", cfg.Session.URL)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = config.Load(writeYAML(t, "session: [not, a, map]\n"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "aegis.db", cfg.Storage.DSN)
	assert.True(t, cfg.Storage.CacheEnabled())
}
