package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "outreach.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://serpapi.com", cfg.Serp.BaseURL)
	assert.Equal(t, "google_maps", cfg.Serp.Engine)
	assert.Equal(t, 3, cfg.Serp.MaxPages)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 1024, cfg.Anthropic.MaxTokens)
	assert.Equal(t, 5, cfg.Scrape.Concurrency)
	assert.Equal(t, 100, cfg.Scrape.MinContentLen)
	assert.Equal(t, 3, cfg.Enrich.Concurrency)
	assert.Equal(t, 1000, cfg.Campaign.SendPacingMS)
	assert.NotEmpty(t, cfg.Pricing.Anthropic)
	assert.InDelta(t, 0.003, cfg.Pricing.Serp.PerQuery, 0.0001)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/outreach
log:
  level: debug
  format: console
scrape:
  concurrency: 10
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/outreach", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Scrape.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Enrich.Concurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("OUTREACH_STORE_DRIVER", "postgres")
	t.Setenv("OUTREACH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("OUTREACH_SERVER_PORT", "3000")
	t.Setenv("OUTREACH_SERP_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "test-key", cfg.Serp.Key)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "outreach.db"
	cfg.Scrape.Concurrency = 5
	cfg.Enrich.Concurrency = 3
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateScrape(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serp.key is required")

	cfg.Serp.Key = "key"
	assert.NoError(t, cfg.Validate("scrape"))

	cfg.Scrape.Concurrency = 0
	err = cfg.Validate("scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scrape.concurrency must be between 1 and 50")
}

func TestValidateEnrich(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateCampaign(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("campaign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gmail.client_id is required")
	assert.Contains(t, err.Error(), "gmail.client_secret is required")

	cfg.Gmail.ClientID = "id"
	cfg.Gmail.ClientSecret = "secret"
	assert.NoError(t, cfg.Validate("campaign"))
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateBadDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
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
