package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default().Tasks, cfg.Tasks)
	assert.Equal(t, 15*time.Second, cfg.Network.Timeouts["slow-2g"])
	assert.Equal(t, 3, cfg.Network.Retries["2g"])
	assert.Equal(t, "X-CSRFToken", cfg.CSRF.Header)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notesdk.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://notes.example.com
tasks:
  poll_interval: 250ms
network:
  timeouts:
    3g: 12s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://notes.example.com", cfg.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Tasks.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.Tasks.PollMaxDuration)
	assert.Equal(t, 12*time.Second, cfg.Network.Timeouts["3g"])
	assert.Equal(t, 15*time.Second, cfg.Network.Timeouts["slow-2g"])
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NOTESDK_BASE_URL", "http://env.example")
	t.Setenv("NOTESDK_CSRF_TOKEN", "tok")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://env.example", cfg.BaseURL)
	assert.Equal(t, "tok", cfg.CSRF.Token)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "notesdk.yml")
	cfg := Default()
	cfg.BaseURL = "http://written.example"
	cfg.Tasks.PollMaxDuration = 2 * time.Minute

	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://written.example", loaded.BaseURL)
	assert.Equal(t, 2*time.Minute, loaded.Tasks.PollMaxDuration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.BaseURL = " " }},
		{"zero poll interval", func(c *Config) { c.Tasks.PollInterval = 0 }},
		{"negative submit retries", func(c *Config) { c.Tasks.SubmitRetries = -1 }},
		{"backoff max below base", func(c *Config) { c.Network.BackoffMax = time.Millisecond }},
		{"non-positive kind timeout", func(c *Config) { c.Network.Timeouts["4g"] = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestURL(t *testing.T) {
	cfg := Default()
	cfg.BaseURL = "http://host/"
	assert.Equal(t, "http://host/api/calibrate/async", cfg.URL("/api/calibrate/async"))
}
