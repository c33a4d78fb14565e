package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "test-agent.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "anthropic", cfg.Classifier.Provider)
	assert.Equal(t, 90*time.Second, cfg.Classifier.CallTimeout)
	assert.InDelta(t, 5.0, cfg.Classifier.RatePerSec, 0.001)
	assert.Equal(t, 3, cfg.Classifier.MaxAttempts)
	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, time.Hour, cfg.Jobs.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(2048), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "/reports/", cfg.Reports.URLPrefix)
	assert.Equal(t, int64(32<<20), cfg.Uploads.MaxBytes)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Monitoring.CheckInterval)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 1e-9)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/agent
classifier:
  provider: openai
  call_timeout: 15s
jobs:
  timeout: 30m
  retention: 0s
pipeline:
  max_concurrency: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/agent", cfg.Store.DatabaseURL)
	assert.Equal(t, "openai", cfg.Classifier.Provider)
	assert.Equal(t, 15*time.Second, cfg.Classifier.CallTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.Timeout)
	assert.Equal(t, time.Duration(0), cfg.Jobs.Retention)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
jobs:
  timeout: 30m
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TESTAGENT_JOBS_TIMEOUT", "5m")
	t.Setenv("TESTAGENT_LOG_LEVEL", "warn")
	t.Setenv("TESTAGENT_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Jobs.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("jobs: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation in every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "test.db"
	cfg.Classifier.Provider = "anthropic"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Jobs.Timeout = time.Hour
	cfg.Pipeline.MaxConcurrency = 8
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("analyze"))
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	cfg.Store.DatabaseURL = ""
	cfg.Jobs.Timeout = 0

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "jobs.timeout must be > 0")
}

func TestValidate_OpenAIProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Classifier.Provider = "openai"

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai.key is required")

	cfg.OpenAI.Key = "sk-test"
	cfg.OpenAI.BaseURL = "http://localhost:11434/v1"
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidate_UnknownProviderAndDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Classifier.Provider = "bard"
	cfg.Store.Driver = "mongo"

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `classifier.provider "bard" is not supported`)
	assert.Contains(t, err.Error(), `store.driver "mongo" is not supported`)
}

func TestValidate_NoStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "none"
	cfg.Store.DatabaseURL = ""
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidate_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.MaxConcurrency = 0
	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency must be between 1 and 64")

	cfg.Pipeline.MaxConcurrency = 65
	assert.Error(t, cfg.Validate("analyze"))

	cfg.Pipeline.MaxConcurrency = 64
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("analyze"))
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
