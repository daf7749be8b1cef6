package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"API_URL", "HEALTH_PATH", "ROUTE_HINT", "REQUEST_TIMEOUT", "AUTH_TOKEN",
	"AUTH_TOKEN_FILE", "PROBE_INTERVAL", "PROBE_TIMEOUT", "PROBE_CONFIRMATIONS",
	"REFETCH_RETRIES", "HOST", "PORT", "JOURNAL_URL", "JOURNAL_DB",
	"WS_ENABLED", "WS_MAX_CLIENTS", "LOG_LEVEL", "LOG_FILE",
}

// clearEnv blanks every key for the test; empty values fall back to defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.Remote.URL)
	assert.Equal(t, "/api/health", cfg.Remote.HealthPath)
	assert.Equal(t, 10*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, 15*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Timeout)
	assert.Equal(t, 2, cfg.Monitor.Confirmations)
	assert.Equal(t, 3, cfg.Sync.RefetchRetries)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.True(t, cfg.WebSocket.Enabled)
	assert.Empty(t, cfg.Journal.URL)
	assert.False(t, cfg.Logging.Debug())
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that is already set, even to "".
	for _, k := range []string{"API_URL", "PROBE_INTERVAL", "LOG_LEVEL", "WS_ENABLED"} {
		os.Unsetenv(k)
	}

	path := filepath.Join(t.TempDir(), "notesync.env")
	content := "API_URL=http://notes.internal:4000\nPROBE_INTERVAL=30s\nLOG_LEVEL=debug\nWS_ENABLED=false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"API_URL", "PROBE_INTERVAL", "LOG_LEVEL", "WS_ENABLED"} {
			os.Unsetenv(k)
		}
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://notes.internal:4000", cfg.Remote.URL)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.True(t, cfg.Logging.Debug())
	assert.False(t, cfg.WebSocket.Enabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad duration", key: "PROBE_TIMEOUT", value: "soon"},
		{name: "bad request timeout", key: "REQUEST_TIMEOUT", value: "10"},
		{name: "zero confirmations", key: "PROBE_CONFIRMATIONS", value: "0"},
		{name: "negative retries", key: "REFETCH_RETRIES", value: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}

func TestGetEnvAsInt_FallsBack(t *testing.T) {
	t.Setenv("WS_MAX_CLIENTS", "many")
	assert.Equal(t, 4, getEnvAsInt("WS_MAX_CLIENTS", 4))
}
