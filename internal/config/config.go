// Package config provides configuration loading for botd.
//
// Configuration is loaded from an optional YAML file, then overridden by
// environment variables. Static values defined here are the lowest layer of
// the per-request AI configuration: tenant overrides and dynamic system
// settings take precedence at resolution time (see internal/tenant).
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/botd/internal/logging"
)

// Provider names accepted for ai.provider.
const (
	ProviderOpenAI      = "openai"
	ProviderLocal       = "local"
	ProviderOllama      = "ollama"
	ProviderCustom      = "custom"
	ProviderHuggingFace = "huggingface"
)

// Config holds the complete botd configuration.
type Config struct {
	Server ServerConfig   `koanf:"server"`
	Log    logging.Config `koanf:"log"`
	Data   DataConfig     `koanf:"data"`
	Qdrant QdrantConfig   `koanf:"qdrant"`
	AI     AIConfig       `koanf:"ai"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DataConfig holds local persistence configuration.
type DataConfig struct {
	// Path is the bbolt database file backing system settings and the
	// bot registry.
	Path string `koanf:"path"`
}

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	APIKey Secret `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

// AIConfig holds the static AI provider defaults. Each field is the lowest
// layer of the resolution chain: bot override > system setting > this value.
type AIConfig struct {
	Provider            string  `koanf:"provider"`
	OpenAIAPIKey        Secret  `koanf:"openai_api_key"`
	EmbeddingModel      string  `koanf:"embedding_model"`
	ChatModel           string  `koanf:"chat_model"`
	OllamaBaseURL       string  `koanf:"ollama_base_url"`
	LocalEmbeddingModel string  `koanf:"local_embedding_model"`
	LocalChatModel      string  `koanf:"local_chat_model"`
	CustomBaseURL       string  `koanf:"custom_base_url"`
	CustomModelName     string  `koanf:"custom_model_name"`
	HuggingFaceAPIKey   Secret  `koanf:"huggingface_api_key"`
	Temperature         float64 `koanf:"temperature"`
	MaxTokens           int     `koanf:"max_tokens"`
	ModelCacheDir       string  `koanf:"model_cache_dir"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if c.Qdrant.Host == "" {
		return errors.New("qdrant host required")
	}
	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("invalid qdrant port: %d", c.Qdrant.Port)
	}
	switch c.AI.Provider {
	case ProviderOpenAI, ProviderLocal, ProviderOllama, ProviderCustom, ProviderHuggingFace:
	default:
		return fmt.Errorf("invalid ai provider: %q", c.AI.Provider)
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("invalid temperature: %v (must be 0-2)", c.AI.Temperature)
	}
	if c.AI.MaxTokens <= 0 {
		return errors.New("max tokens must be positive")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Data.Path == "" {
		cfg.Data.Path = "./data/botd.db"
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334 // gRPC port, not the HTTP REST port
	}

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = ProviderOpenAI
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.AI.ChatModel == "" {
		cfg.AI.ChatModel = "gpt-4o-mini"
	}
	if cfg.AI.OllamaBaseURL == "" {
		cfg.AI.OllamaBaseURL = "http://host.docker.internal:11434"
	}
	if cfg.AI.LocalEmbeddingModel == "" {
		cfg.AI.LocalEmbeddingModel = "BAAI/bge-small-en-v1.5"
	}
	if cfg.AI.LocalChatModel == "" {
		cfg.AI.LocalChatModel = "llama3"
	}
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = 0.7
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 500
	}
	if cfg.AI.ModelCacheDir == "" {
		cfg.AI.ModelCacheDir = "./data/models"
	}
}
