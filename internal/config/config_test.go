package config

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig(".")

	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 5001, cfg.Server.StatsPort)
	assert.Equal(t, DefaultTradePattern, cfg.Stats.TradePattern)
	assert.Equal(t, 1024, cfg.Stats.WindowBytes)
	assert.Equal(t, "headless_config.json", cfg.Trading.ConfigPath)
}

func TestLoadConfig_DefaultLogFileIsTailed(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig(".")

	require.NoError(t, err)
	assert.Equal(t, "trader.log", cfg.Logger.File)
	path := filepath.Join(cfg.Stats.LogDir, cfg.Logger.File)
	assert.Regexp(t, regexp.MustCompile(cfg.Stats.FilePattern), path)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	chdir(t, dir)
	yml := "server:\n  port: 8080\nmarket:\n  dry_run: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MARKET_API_KEY=from-dotenv\n"), 0o644))
	t.Setenv("LOGGER_LEVEL", "debug")
	t.Cleanup(func() { os.Unsetenv("MARKET_API_KEY") })

	// Act
	cfg, err := LoadConfig(dir)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Market.DryRun)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "from-dotenv", cfg.Market.ApiKey)
}
