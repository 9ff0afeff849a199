package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv, testin ortamdan etkilenmemesi için bilinen anahtarları boşaltır.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "MQVI_SERVER_URL", "MQVI_WS_URL", "MQVI_TOKEN", "MQVI_USERNAME",
		"MQVI_CHANNEL", "VOICE_DATA_DIR", "DATABASE_PATH", "METRICS_ADDR", "LOCALE",
		"STUN_SERVERS", "REQUEST_TIMEOUT", "SYNC_INTERVAL", "VOICE_CACHE_TTL",
		"CALL_DISCONNECT_GRACE", "SYNC_LIMIT", "SEND_MAX_MESSAGES",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	// .env aramasının repo dizinindeki dosyalara takılmaması için
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.Server.URL)
	assert.Equal(t, 3*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 100, cfg.Sync.Limit)
	assert.Equal(t, 2*time.Second, cfg.Call.DisconnectGrace)
	assert.Len(t, cfg.Call.STUNServers, 2)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: https://chat.example.com
sync:
  interval: 5s
  channel: general
call:
  stun_servers: ["stun:example.com:3478"]
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SYNC_INTERVAL", "1s")
	t.Setenv("MQVI_TOKEN", "abc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.Server.URL)
	assert.Equal(t, time.Second, cfg.Sync.Interval)
	assert.Equal(t, "general", cfg.Sync.Channel)
	assert.Equal(t, []string{"stun:example.com:3478"}, cfg.Call.STUNServers)
	assert.Equal(t, "abc", cfg.Auth.Token)
	assert.Equal(t, 100, cfg.Sync.Limit)
}

func TestRequestTimeoutIsNotConfigurable(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: https://chat.example.com
  request_timeout: 1s
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err, "request timeout keys are ignored")
	assert.Equal(t, ServerConfig{URL: "https://chat.example.com"}, cfg.Server)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYNC_LIMIT", "many")
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("SYNC_INTERVAL", "0s")
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList("a, b,,c"))
	assert.Nil(t, splitList(" , "))
}
