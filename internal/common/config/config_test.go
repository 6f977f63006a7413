package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "signpad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  ws_base_url: ws://localhost:8081
  api_base_url: http://localhost:8081/api/v1
`)

	cfg, loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, loaded)
	assert.Equal(t, "ws://localhost:8081", cfg.Server.WSBaseURL)
	assert.Equal(t, 3*time.Second, cfg.Connection.ReconnectInterval)
	assert.Equal(t, 10, cfg.Connection.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.Connection.HeartbeatInterval)
	assert.Equal(t, time.Minute, cfg.Status.UpdateInterval)
	assert.Equal(t, "signpad", cfg.Metrics.Namespace)
}

func TestLoadConfig_EnvResolution(t *testing.T) {
	t.Setenv("SIGNPAD_WS_URL", "wss://crm.internal")

	path := writeTempConfig(t, `
server:
  ws_base_url: ${SIGNPAD_WS_URL}
  api_base_url: ${SIGNPAD_API_URL:http://fallback/api}
connection:
  heartbeat_interval: 5s
`)

	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://crm.internal", cfg.Server.WSBaseURL)
	assert.Equal(t, "http://fallback/api", cfg.Server.APIBaseURL)
	assert.Equal(t, 5*time.Second, cfg.Connection.HeartbeatInterval)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
