package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })

	require.NoError(t, LoadConfig(""))
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, ProviderGoogle, cfg.Planner.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Planner.Model)
	assert.Equal(t, ProviderOpenAI, cfg.Worker.Provider)
	assert.Equal(t, "https://api.together.xyz/v1", cfg.Worker.BaseURL)
	assert.Equal(t, 3, cfg.Loop.MaxRounds)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
planner:
  provider: anthropic
  model: claude-sonnet-4-20250514
worker:
  provider: ollama
  model: qwen2.5-coder
loop:
  max_rounds: 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	require.NoError(t, LoadConfig(path))
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Planner.Provider)
	assert.Equal(t, ProviderOllama, cfg.Worker.Provider)
	assert.Equal(t, 5, cfg.Loop.MaxRounds)
}

func TestLoadConfigRejectsBadProvider(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planner:\n  provider: mystery\n"), 0o644))

	err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid planner provider")
}

func TestResolveAPIKeyByBaseURL(t *testing.T) {
	t.Setenv(EnvTogetherAPIKey, "together-key")
	t.Setenv(EnvOpenAIAPIKey, "openai-key")
	t.Setenv(EnvGeminiAPIKey, "gemini-key")

	key, err := ResolveAPIKey(ModelCfg{Provider: ProviderOpenAI, BaseURL: "https://api.together.xyz/v1"})
	require.NoError(t, err)
	assert.Equal(t, "together-key", key)

	key, err = ResolveAPIKey(ModelCfg{Provider: ProviderOpenAI})
	require.NoError(t, err)
	assert.Equal(t, "openai-key", key)

	key, err = ResolveAPIKey(ModelCfg{Provider: ProviderGoogle})
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", key)
}

func TestResolveAPIKeyMissing(t *testing.T) {
	t.Setenv(EnvAnthropicAPIKey, "")

	_, err := ResolveAPIKey(ModelCfg{Provider: ProviderAnthropic})
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestResolveAPIKeyPrefersSecretsFile(t *testing.T) {
	t.Setenv(EnvGeminiAPIKey, "env-key")
	SetDecryptedSecrets(map[string]string{EnvGeminiAPIKey: "vault-key"})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	key, err := ResolveAPIKey(ModelCfg{Provider: ProviderGoogle})
	require.NoError(t, err)
	assert.Equal(t, "vault-key", key)
}

func TestSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := map[string]string{
		EnvGeminiAPIKey:   "abc123",
		EnvTogetherAPIKey: "def456",
	}

	require.NoError(t, EncryptSecretsFile(dir, "hunter2", in))
	assert.True(t, SecretsFileExists(dir))

	out, err := DecryptSecretsFile(dir, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecryptSecretsFile(dir, "wrong-password")
	require.Error(t, err)
}
