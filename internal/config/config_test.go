package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "https://script.google.com/macros/s/test/exec"

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, DefaultDailyCap, cfg.Keys.DailyCap)
	assert.Equal(t, DefaultValidityDays, cfg.Keys.ValidityDays)
	assert.Equal(t, 24*time.Hour, cfg.Keys.LegacyMaxAge)
	assert.Equal(t, -1, cfg.Keys.PaidBonus)
	assert.NotEmpty(t, cfg.Keys.Secret)
	assert.NotEmpty(t, cfg.Keys.LegacySecret)
	assert.NotEqual(t, cfg.Keys.Secret, cfg.Keys.LegacySecret,
		"the two schemes use different secret revisions")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CSK_REMOTE_ENDPOINT_URL", testEndpoint)
	t.Setenv("CSK_SERVER_PORT", "9090")
	t.Setenv("CSK_KEYS_DAILY_CAP", "3")
	t.Setenv("CSK_KEYS_SECRET", "env-secret")
	t.Setenv("CSK_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testEndpoint, cfg.Remote.EndpointURL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Keys.DailyCap)
	assert.Equal(t, "env-secret", cfg.Keys.Secret)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("CSK_REMOTE_ENDPOINT_URL", testEndpoint)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 5, cfg.Keys.DailyCap)
	assert.Equal(t, DefaultSecret, cfg.Keys.Secret, "built-in secret applies when none is configured")
	assert.Equal(t, "data/keystore.json", cfg.Store.Path)
}

func TestLoadValidation(t *testing.T) {
	t.Run("missing endpoint", func(t *testing.T) {
		t.Setenv("CSK_REMOTE_ENDPOINT_URL", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint URL is required")
	})

	t.Run("malformed endpoint", func(t *testing.T) {
		t.Setenv("CSK_REMOTE_ENDPOINT_URL", "not-a-url")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid remote endpoint URL")
	})

	t.Run("port out of range", func(t *testing.T) {
		t.Setenv("CSK_REMOTE_ENDPOINT_URL", testEndpoint)
		t.Setenv("CSK_SERVER_PORT", "70000")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("non-positive daily cap", func(t *testing.T) {
		t.Setenv("CSK_REMOTE_ENDPOINT_URL", testEndpoint)
		t.Setenv("CSK_KEYS_DAILY_CAP", "-1")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "daily cap must be positive")
	})
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9001
remote:
  endpoint_url: ` + testEndpoint + `
keys:
  secret: file-secret
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Chdir(dir)

	t.Run("file values apply", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 9001, cfg.Server.Port)
		assert.Equal(t, testEndpoint, cfg.Remote.EndpointURL)
		assert.Equal(t, "file-secret", cfg.Keys.Secret)
	})

	t.Run("env wins over file", func(t *testing.T) {
		t.Setenv("CSK_SERVER_PORT", "9002")
		t.Setenv("CSK_KEYS_SECRET", "env-secret")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 9002, cfg.Server.Port)
		assert.Equal(t, "env-secret", cfg.Keys.Secret)
	})
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0644))
	t.Chdir(dir)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config file")
}
