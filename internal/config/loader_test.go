package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.EmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.ChatModel)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.AI.LocalEmbeddingModel)
	assert.Equal(t, "llama3", cfg.AI.LocalChatModel)
	assert.InDelta(t, 0.7, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 500, cfg.AI.MaxTokens)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "botd.yaml")
	content := []byte(`
server:
  port: 9999
ai:
  provider: local
  ollama_base_url: http://ollama:11434
qdrant:
  host: qdrant.internal
`)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, ProviderLocal, cfg.AI.Provider)
	assert.Equal(t, "http://ollama:11434", cfg.AI.OllamaBaseURL)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "botd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0600))

	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("AI_PROVIDER", "huggingface")
	t.Setenv("AI_HUGGINGFACE_API_KEY", "hf_secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, ProviderHuggingFace, cfg.AI.Provider)
	assert.Equal(t, "hf_secret", cfg.AI.HuggingFaceAPIKey.Value())
}

func TestLoadMissingFileIsFine(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoadRejectsInvalidProvider(t *testing.T) {
	t.Setenv("AI_PROVIDER", "skynet")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ai provider")
}

func TestEnvToKey(t *testing.T) {
	assert.Equal(t, "server.port", envToKey("SERVER_PORT"))
	assert.Equal(t, "server.shutdown_timeout", envToKey("SERVER_SHUTDOWN_TIMEOUT"))
	assert.Equal(t, "ai.openai_api_key", envToKey("AI_OPENAI_API_KEY"))
	assert.Equal(t, "home", envToKey("HOME"))
}
