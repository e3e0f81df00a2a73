package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConsoleDefaults(t *testing.T) {
	cfg, err := LoadConsole(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.StatusReset)
}

func TestLoadConsoleFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "base_url: http://exams.example:8080\npoll_interval: 5s\nsession_file: /tmp/s.json\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("INVIGILATION_POLL_INTERVAL", "10s")

	cfg, err := LoadConsole(path)
	require.NoError(t, err)
	assert.Equal(t, "http://exams.example:8080", cfg.BaseURL)
	assert.Equal(t, "/tmp/s.json", cfg.SessionFile)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
}

func TestLoadConsoleRejectsRelativeURL(t *testing.T) {
	t.Setenv("INVIGILATION_BASE_URL", "localhost:5000")
	_, err := LoadConsole("")
	assert.Error(t, err)
}
