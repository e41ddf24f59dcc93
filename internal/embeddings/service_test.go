package embeddings

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/botd/internal/config"
	"github.com/fyrsmithlabs/botd/internal/settings"
	"github.com/fyrsmithlabs/botd/internal/tenant"
)

// fakeProvider returns deterministic vectors of a fixed dimension.
type fakeProvider struct {
	dim   int
	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(i)
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeProvider) Dimension() int { return f.dim }
func (f *fakeProvider) Close() error   { return nil }

func newTestService(t *testing.T, store settings.Store) (*Service, *fakeProvider, *fakeProvider) {
	t.Helper()

	defaults := config.AIConfig{
		Provider:            "openai",
		OpenAIAPIKey:        config.Secret("sk-default"),
		EmbeddingModel:      "text-embedding-3-small",
		ChatModel:           "gpt-4o-mini",
		OllamaBaseURL:       "http://host.docker.internal:11434",
		LocalEmbeddingModel: "BAAI/bge-small-en-v1.5",
		LocalChatModel:      "llama3",
		Temperature:         0.7,
		MaxTokens:           500,
	}

	svc := NewService(tenant.NewResolver(store, defaults), zap.NewNop())
	remote := &fakeProvider{dim: RemoteDimension}
	local := &fakeProvider{dim: LocalDimension}
	svc.newRemote = func(OpenAIConfig) (Provider, error) { return remote, nil }
	svc.newLocal = func(FastEmbedConfig) (Provider, error) { return local, nil }
	return svc, remote, local
}

func TestEmbedEmptyInput(t *testing.T) {
	svc, remote, local := newTestService(t, settings.NewMemoryStore())

	vectors, err := svc.Embed(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, remote.calls, "no provider call for empty input")
	assert.Zero(t, local.calls)
}

func TestEmbedSelectsRemoteByDefault(t *testing.T) {
	svc, remote, local := newTestService(t, settings.NewMemoryStore())

	texts := []string{"a", "b", "c"}
	vectors, err := svc.Embed(context.Background(), texts, nil)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for _, v := range vectors {
		assert.Len(t, v, RemoteDimension)
	}
	assert.Equal(t, 1, remote.calls)
	assert.Zero(t, local.calls)
}

func TestEmbedSelectsLocalForNonHostedBot(t *testing.T) {
	for _, provider := range []string{"local", "ollama", "custom", "huggingface"} {
		t.Run(provider, func(t *testing.T) {
			svc, remote, local := newTestService(t, settings.NewMemoryStore())
			bot := &tenant.Bot{ID: "bot-1", Provider: provider}

			vectors, err := svc.Embed(context.Background(), []string{"q"}, bot)
			require.NoError(t, err)
			require.Len(t, vectors, 1)
			assert.Len(t, vectors[0], LocalDimension)
			assert.Zero(t, remote.calls, "non-hosted bot must never hit the hosted API")
			assert.Equal(t, 1, local.calls)
		})
	}
}

func TestEmbedSelectsLocalFromGlobalSetting(t *testing.T) {
	for _, provider := range []string{"local", "ollama"} {
		t.Run(provider, func(t *testing.T) {
			ctx := context.Background()
			store := settings.NewMemoryStore()
			require.NoError(t, store.Set(ctx, settings.KeyAIProvider, provider))
			svc, remote, local := newTestService(t, store)

			_, err := svc.Embed(ctx, []string{"q"}, nil)
			require.NoError(t, err)
			assert.Zero(t, remote.calls)
			assert.Equal(t, 1, local.calls)
		})
	}
}

func TestEmbedGlobalHostedCompatibleStaysRemote(t *testing.T) {
	for _, provider := range []string{"custom", "huggingface"} {
		t.Run(provider, func(t *testing.T) {
			ctx := context.Background()
			store := settings.NewMemoryStore()
			require.NoError(t, store.Set(ctx, settings.KeyAIProvider, provider))
			svc, remote, local := newTestService(t, store)

			// No bot in scope: only local/ollama globals embed in process.
			_, err := svc.Embed(ctx, []string{"q"}, nil)
			require.NoError(t, err)
			assert.Equal(t, 1, remote.calls)
			assert.Zero(t, local.calls)
		})
	}
}

func TestEmbedHostedBotStaysRemoteDespiteGlobalLocal(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()
	require.NoError(t, store.Set(ctx, settings.KeyAIProvider, "local"))
	svc, remote, local := newTestService(t, store)

	// Explicit per-bot override back to the hosted provider.
	bot := &tenant.Bot{ID: "bot-1", Provider: "openai", AIAPIKey: "sk-bot"}
	_, err := svc.Embed(ctx, []string{"q"}, bot)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.calls)
	assert.Zero(t, local.calls)
}

func TestLocalModelLoadedOnce(t *testing.T) {
	store := settings.NewMemoryStore()
	svc, _, _ := newTestService(t, store)

	loads := 0
	svc.newLocal = func(FastEmbedConfig) (Provider, error) {
		loads++
		return &fakeProvider{dim: LocalDimension}, nil
	}

	bot := &tenant.Bot{ID: "bot-1", Provider: "local"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Embed(context.Background(), []string{"x"}, bot)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, loads, "local model load must happen at most once")
}

func TestRemoteClientRebuiltOnKeyChange(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()
	svc, _, _ := newTestService(t, store)

	builds := 0
	svc.newRemote = func(OpenAIConfig) (Provider, error) {
		builds++
		return &fakeProvider{dim: RemoteDimension}, nil
	}

	_, err := svc.Embed(ctx, []string{"x"}, nil)
	require.NoError(t, err)
	_, err = svc.Embed(ctx, []string{"y"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, builds, "same credentials reuse the client")

	require.NoError(t, store.Set(ctx, settings.KeyOpenAIAPIKey, "sk-rotated"))
	_, err = svc.Embed(ctx, []string{"z"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, builds, "credential change rebuilds the client")
}
