package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "auto", cfg.Provider)
	assert.Equal(t, 1200, cfg.Planner.MaxTokens)
	assert.Equal(t, 0.2, cfg.Planner.Temperature)
	assert.Equal(t, 30, cfg.Navigation.ActionBudget)
	assert.True(t, cfg.Capture.MultiViewport)
	assert.Equal(t, 1366, cfg.Capture.DesktopViewport.Width)
	assert.Equal(t, 9109, cfg.Metrics.PrometheusPort)
	assert.Equal(t, "chromium", cfg.Browser.Project)
	assert.False(t, cfg.Vision.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Provider)
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parallax.yaml")

	original := DefaultConfig()
	original.Provider = "anthropic"
	original.Navigation.ActionBudget = 12
	original.Capture.Redact.Selectors = []string{"[data-sensitive]"}
	require.NoError(t, original.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", loaded.Provider)
	assert.Equal(t, 12, loaded.Navigation.ActionBudget)
	assert.Equal(t, []string{"[data-sensitive]"}, loaded.Capture.Redact.Selectors)
}

func TestNormalizeFlatKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("headless: false\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Browser.Headless)
	assert.Nil(t, cfg.Headless)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresCredentialForCloudProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "anthropic"
	assert.Error(t, cfg.Validate())
	cfg.APIKeys.Anthropic = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10000, int(cfg.PlannerTimeout().Milliseconds()))
	assert.Equal(t, 1000, int(cfg.DefaultWait().Milliseconds()))
	assert.Equal(t, 8000, int(cfg.LoaderTimeout().Milliseconds()))
}
