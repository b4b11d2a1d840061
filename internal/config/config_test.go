package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"TELEGRAM_BOT_TOKEN", "HTTP_PORT", "APP_URL", "DB_PATH", "LOG_LEVEL", "SCRAPER_BACKEND", "FETCH_TIMEOUT", "GC_INTERVAL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "http://localhost:8080", cfg.AppURL)
	assert.Equal(t, "./links_data", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "http", cfg.ScraperBackend)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 10*time.Minute, cfg.GCInterval)
	assert.ErrorIs(t, cfg.ValidateBot(), ErrMissingBotToken)
}

func TestLoadConfig_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("APP_URL", "https://feeds.example/")
	t.Setenv("FETCH_TIMEOUT", "3s")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "https://feeds.example", cfg.AppURL)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.NoError(t, cfg.ValidateBot())
}

func TestLoadConfig_File(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yaml := "DB_PATH: /var/lib/linkfeed\nHTTP_PORT: 8181\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/linkfeed", cfg.DBPath)
	assert.Equal(t, "http://localhost:8181", cfg.AppURL)
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "70000")

	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}
