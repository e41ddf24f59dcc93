package tenant

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/botd/internal/config"
	"github.com/fyrsmithlabs/botd/internal/settings"
)

// Provider is the closed set of AI provider classes.
type Provider string

const (
	ProviderOpenAI      Provider = "openai"
	ProviderLocal       Provider = "local"
	ProviderOllama      Provider = "ollama"
	ProviderCustom      Provider = "custom"
	ProviderHuggingFace Provider = "huggingface"
)

// ParseProvider maps a provider tag to the closed set. Unknown or empty
// values fall back to the OpenAI path.
func ParseProvider(s string) Provider {
	switch Provider(s) {
	case ProviderLocal, ProviderOllama, ProviderCustom, ProviderHuggingFace:
		return Provider(s)
	default:
		return ProviderOpenAI
	}
}

// IsOllama reports whether the provider speaks the Ollama native API.
func (p Provider) IsOllama() bool {
	return p == ProviderLocal || p == ProviderOllama
}

// UsesLocalEmbeddings reports whether embeddings for this provider must be
// generated in-process. Any non-hosted provider embeds locally so it never
// incurs hosted API cost or quota.
func (p Provider) UsesLocalEmbeddings() bool {
	return p != ProviderOpenAI
}

// EffectiveConfig is the fully resolved provider/model/credential set for
// one generation request. Built fresh per request, never persisted.
type EffectiveConfig struct {
	Provider    Provider
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// huggingFaceBaseURL synthesizes an OpenAI-compatible endpoint for a
// Hugging Face hosted model.
func huggingFaceBaseURL(model string) string {
	return fmt.Sprintf("https://api-inference.huggingface.co/models/%s/v1", model)
}

// ResolveEffective merges the three configuration layers into one effective
// record. Pure function: bot overrides win over the settings snapshot,
// which wins over static defaults.
func ResolveEffective(bot *Bot, snap map[string]string, defaults config.AIConfig) EffectiveConfig {
	var b Bot
	if bot != nil {
		b = *bot
	}

	provider := ParseProvider(firstNonEmpty(b.Provider, snap[settings.KeyAIProvider], defaults.Provider))

	eff := EffectiveConfig{
		Provider:    provider,
		Temperature: defaults.Temperature,
		MaxTokens:   defaults.MaxTokens,
	}
	if b.Temperature != nil {
		eff.Temperature = *b.Temperature
	}

	switch {
	case provider.IsOllama():
		eff.BaseURL = firstNonEmpty(b.AIBaseURL, snap[settings.KeyOllamaBaseURL], defaults.OllamaBaseURL)
		eff.Model = firstNonEmpty(b.ModelID, defaults.LocalChatModel)

	case provider == ProviderCustom:
		eff.BaseURL = firstNonEmpty(b.AIBaseURL, snap[settings.KeyCustomBaseURL], defaults.CustomBaseURL)
		eff.Model = firstNonEmpty(b.ModelID, snap[settings.KeyCustomModelName], defaults.CustomModelName, defaults.ChatModel)
		eff.APIKey = b.AIAPIKey

	case provider == ProviderHuggingFace:
		eff.APIKey = firstNonEmpty(b.AIAPIKey, snap[settings.KeyHuggingFaceAPIKey], defaults.HuggingFaceAPIKey.Value())
		eff.Model = firstNonEmpty(b.ModelID, defaults.ChatModel)
		eff.BaseURL = firstNonEmpty(b.AIBaseURL, huggingFaceBaseURL(eff.Model))

	default: // hosted OpenAI
		eff.APIKey = firstNonEmpty(b.AIAPIKey, snap[settings.KeyOpenAIAPIKey], defaults.OpenAIAPIKey.Value())
		eff.Model = firstNonEmpty(b.ModelID, defaults.ChatModel)
		// Empty base URL selects the hosted default endpoint.
		eff.BaseURL = b.AIBaseURL
	}

	return eff
}

// Resolver resolves effective configuration against the settings store.
type Resolver struct {
	store    settings.Store
	defaults config.AIConfig
}

// NewResolver creates a resolver over the given settings store and static
// defaults.
func NewResolver(store settings.Store, defaults config.AIConfig) *Resolver {
	return &Resolver{store: store, defaults: defaults}
}

// Resolve snapshots the settings store and resolves the effective
// configuration for the bot. A store failure is a hard error; resolution
// never silently falls back past an unreachable store.
func (r *Resolver) Resolve(ctx context.Context, bot *Bot) (EffectiveConfig, error) {
	snap, err := r.store.Snapshot(ctx)
	if err != nil {
		return EffectiveConfig{}, fmt.Errorf("resolving config: %w", err)
	}
	return ResolveEffective(bot, snap, r.defaults), nil
}

// GlobalProvider resolves the provider that applies when no bot is in
// scope (e.g. the embedding path for admin ingestion without overrides).
func (r *Resolver) GlobalProvider(ctx context.Context) (Provider, error) {
	value, found, err := r.store.Get(ctx, settings.KeyAIProvider)
	if err != nil {
		return "", fmt.Errorf("resolving provider: %w", err)
	}
	if !found {
		value = r.defaults.Provider
	}
	return ParseProvider(value), nil
}

// Defaults returns the static default layer.
func (r *Resolver) Defaults() config.AIConfig {
	return r.defaults
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
