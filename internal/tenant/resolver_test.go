package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/botd/internal/config"
	"github.com/fyrsmithlabs/botd/internal/settings"
)

func testDefaults() config.AIConfig {
	return config.AIConfig{
		Provider:        "openai",
		OpenAIAPIKey:    config.Secret("sk-default"),
		ChatModel:       "gpt-4o-mini",
		EmbeddingModel:  "text-embedding-3-small",
		OllamaBaseURL:   "http://host.docker.internal:11434",
		LocalChatModel:  "llama3",
		CustomBaseURL:   "http://custom.internal/v1",
		CustomModelName: "custom-default",
		Temperature:     0.7,
		MaxTokens:       500,
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in   string
		want Provider
	}{
		{"openai", ProviderOpenAI},
		{"local", ProviderLocal},
		{"ollama", ProviderOllama},
		{"custom", ProviderCustom},
		{"huggingface", ProviderHuggingFace},
		{"", ProviderOpenAI},
		{"skynet", ProviderOpenAI}, // unknown falls back to the openai path
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseProvider(tt.in), tt.in)
	}
}

func TestResolveEffectiveDefaultsOnly(t *testing.T) {
	eff := ResolveEffective(nil, nil, testDefaults())

	assert.Equal(t, ProviderOpenAI, eff.Provider)
	assert.Equal(t, "sk-default", eff.APIKey)
	assert.Equal(t, "gpt-4o-mini", eff.Model)
	assert.Empty(t, eff.BaseURL, "empty base URL selects the hosted default")
	assert.InDelta(t, 0.7, eff.Temperature, 1e-9)
	assert.Equal(t, 500, eff.MaxTokens)
}

func TestResolveEffectivePrecedence(t *testing.T) {
	snap := map[string]string{
		settings.KeyAIProvider:   "local",
		settings.KeyOpenAIAPIKey: "sk-from-settings",
	}

	// No bot overrides: system setting beats static default.
	eff := ResolveEffective(nil, snap, testDefaults())
	assert.Equal(t, ProviderLocal, eff.Provider)
	assert.Equal(t, "http://host.docker.internal:11434", eff.BaseURL)
	assert.Equal(t, "llama3", eff.Model)

	// Bot override beats the system setting.
	temp := 0.2
	bot := &Bot{
		ID:          "bot-1",
		Provider:    "openai",
		ModelID:     "gpt-4o",
		AIAPIKey:    "sk-bot",
		Temperature: &temp,
	}
	eff = ResolveEffective(bot, snap, testDefaults())
	assert.Equal(t, ProviderOpenAI, eff.Provider)
	assert.Equal(t, "sk-bot", eff.APIKey)
	assert.Equal(t, "gpt-4o", eff.Model)
	assert.InDelta(t, 0.2, eff.Temperature, 1e-9)
}

func TestResolveEffectiveOllamaBaseURL(t *testing.T) {
	bot := &Bot{ID: "bot-1", Provider: "local", AIBaseURL: "http://localhost:11434"}
	eff := ResolveEffective(bot, map[string]string{
		settings.KeyOllamaBaseURL: "http://settings:11434",
	}, testDefaults())

	assert.Equal(t, ProviderLocal, eff.Provider)
	assert.Equal(t, "http://localhost:11434", eff.BaseURL, "bot URL wins over settings")
}

func TestResolveEffectiveCustom(t *testing.T) {
	snap := map[string]string{
		settings.KeyAIProvider:      "custom",
		settings.KeyCustomBaseURL:   "http://vllm:8000/v1",
		settings.KeyCustomModelName: "qwen2.5-7b",
	}
	eff := ResolveEffective(nil, snap, testDefaults())

	assert.Equal(t, ProviderCustom, eff.Provider)
	assert.Equal(t, "http://vllm:8000/v1", eff.BaseURL)
	assert.Equal(t, "qwen2.5-7b", eff.Model)
	assert.Empty(t, eff.APIKey)
}

func TestResolveEffectiveHuggingFace(t *testing.T) {
	bot := &Bot{ID: "bot-1", Provider: "huggingface", ModelID: "mistralai/Mistral-7B-Instruct-v0.3"}
	eff := ResolveEffective(bot, map[string]string{
		settings.KeyHuggingFaceAPIKey: "hf_token",
	}, testDefaults())

	assert.Equal(t, ProviderHuggingFace, eff.Provider)
	assert.Equal(t, "hf_token", eff.APIKey)
	assert.Equal(t, "https://api-inference.huggingface.co/models/mistralai/Mistral-7B-Instruct-v0.3/v1", eff.BaseURL)
}

func TestUsesLocalEmbeddings(t *testing.T) {
	assert.False(t, ProviderOpenAI.UsesLocalEmbeddings())
	assert.True(t, ProviderLocal.UsesLocalEmbeddings())
	assert.True(t, ProviderOllama.UsesLocalEmbeddings())
	assert.True(t, ProviderCustom.UsesLocalEmbeddings())
	assert.True(t, ProviderHuggingFace.UsesLocalEmbeddings())
}

type failingSettings struct{}

func (failingSettings) Get(context.Context, string) (string, bool, error) {
	return "", false, settings.ErrStoreUnavailable
}
func (failingSettings) Set(context.Context, string, string) error {
	return settings.ErrStoreUnavailable
}
func (failingSettings) Snapshot(context.Context) (map[string]string, error) {
	return nil, settings.ErrStoreUnavailable
}

func TestResolverStoreUnavailableIsHardError(t *testing.T) {
	r := NewResolver(failingSettings{}, testDefaults())
	_, err := r.Resolve(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, settings.ErrStoreUnavailable))
}

func TestResolverResolve(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()
	require.NoError(t, store.Set(ctx, settings.KeyAIProvider, "ollama"))

	r := NewResolver(store, testDefaults())
	eff, err := r.Resolve(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, eff.Provider)

	p, err := r.GlobalProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, p)
}
