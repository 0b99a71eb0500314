package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ZAI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "PARALLAX_OUTPUT_DIR"} {
		t.Setenv(key, "")
	}
}

func TestEnvOverrideAnthropicSelectsProvider(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "sk-ant-test", cfg.APIKeys.Anthropic)
}

func TestEnvOverrideOpenAISelectsProvider(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
}

func TestEnvOverrideZAISelectsLocalProvider(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ZAI_API_KEY", "zai-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Provider)
	assert.Equal(t, "zai-test", cfg.APIKeys.ZAI)
}

func TestEnvOverrideDoesNotClobberExplicitProvider(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai-test")

	dir := t.TempDir()
	path := filepath.Join(dir, "parallax.yaml")
	cfg := DefaultConfig()
	cfg.Provider = "anthropic"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", loaded.Provider)
	assert.Equal(t, "sk-openai-test", loaded.APIKeys.OpenAI)
}

func TestEnvOverrideOutputDir(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("PARALLAX_OUTPUT_DIR", "/tmp/parallax-datasets")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/parallax-datasets", cfg.Output.BaseDir)
}
