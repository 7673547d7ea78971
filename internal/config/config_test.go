package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found.
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "compintel.db", cfg.Store.SQLitePath)
	assert.EqualValues(t, 10, cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.HaikuModel)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.SonnetModel)
	assert.Equal(t, "https://www.googleapis.com/customsearch/v1", cfg.Search.BaseURL)
	assert.EqualValues(t, 100, cfg.Search.DailyQuota)
	assert.InDelta(t, 2.0, cfg.Fetch.PerHostRate, 0.001)
	assert.Equal(t, 4, cfg.Fetch.Burst)
	assert.EqualValues(t, 100, cfg.Fetch.PerHostBudget)
	assert.Equal(t, 15, cfg.Fetch.TimeoutSecs)
	assert.True(t, cfg.Fetch.RespectRobots)
	assert.Equal(t, 200, cfg.Discovery.MaxSitemapURLs)
	assert.Equal(t, 10, cfg.Discovery.MaxLinkFetches)
	assert.EqualValues(t, 40, cfg.Complaints.PerSourceQuota)
	assert.Equal(t, 5, cfg.Complaints.HitsPerQuery)
	assert.InDelta(t, 0.3, cfg.Complaints.MinScore, 0.001)
	assert.InDelta(t, 0.5, cfg.Categorize.ConfidenceFloor, 0.001)
	assert.EqualValues(t, 4096, cfg.Extract.MaxTokens)
	assert.Equal(t, 48, cfg.Extract.ContextKilobytes)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/compintel
log:
  level: debug
  format: console
server:
  port: 9090
complaints:
  per_source_quota: 80
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/compintel", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.EqualValues(t, 80, cfg.Complaints.PerSourceQuota)
	// Defaults still apply for unset values.
	assert.Equal(t, 5, cfg.Complaints.HitsPerQuery)
}

func TestLoadEnvOverrides(t *testing.T) {
	chTempDir(t)

	t.Setenv("COMPINTEL_STORE_DRIVER", "postgres")
	t.Setenv("COMPINTEL_ANTHROPIC_KEY", "sk-test")
	t.Setenv("COMPINTEL_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadBadYAML(t *testing.T) {
	chTempDir(t)

	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [not a map"), 0644))

	_, err := Load()
	require.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
		assert.NotNil(t, zap.L())
	})

	t.Run("console", func(t *testing.T) {
		require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	})

	t.Run("bad level", func(t *testing.T) {
		require.Error(t, InitLogger(LogConfig{Level: "verbose", Format: "json"}))
	})
}
