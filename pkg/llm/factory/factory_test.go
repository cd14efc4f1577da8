package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgeloop/pkg/config"
)

func TestNewClientMissingCredential(t *testing.T) {
	t.Setenv(config.EnvOpenAIAPIKey, "")

	mc := config.ModelCfg{Provider: config.ProviderOpenAI, Model: "gpt-4o"}
	_, err := NewClient(mc, config.ResilienceCfg{}, "worker", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredential)
}

func TestNewClientOllamaNeedsNoKey(t *testing.T) {
	t.Setenv(config.EnvOllamaHost, "")

	mc := config.ModelCfg{Provider: config.ProviderOllama, Model: "qwen2.5-coder"}
	client, err := NewClient(mc, config.ResilienceCfg{}, "worker", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-coder", client.ModelName())
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	mc := config.ModelCfg{Provider: "carrier-pigeon", Model: "m"}
	_, err := NewClient(mc, config.ResilienceCfg{}, "planner", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestNewClientBuildsChain(t *testing.T) {
	t.Setenv(config.EnvGeminiAPIKey, "test-key")

	mc := config.ModelCfg{Provider: config.ProviderGoogle, Model: "gemini-2.5-flash"}
	client, err := NewClient(mc, config.ResilienceCfg{}, "planner", nil, nil)
	require.NoError(t, err)
	// The chain must preserve the underlying model identity.
	assert.Equal(t, "gemini-2.5-flash", client.ModelName())
}
