package embeddings

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/botd/internal/tenant"
)

// Service selects an embedding strategy per call and delegates to it.
//
// Selection rule: a bot whose resolved provider is anything other than the
// hosted default embeds locally; with no bot in scope only a local/ollama
// global provider selects the in-process model, while hosted-compatible
// globals (custom, huggingface) still embed remotely.
// The local model is loaded lazily, at most once per process, and
// the first caller blocks on the load. The remote client is cached and
// rebuilt only when the resolved (api_key, base_url) pair changes.
type Service struct {
	resolver *tenant.Resolver
	logger   *zap.Logger

	localModel    string
	localCacheDir string

	localOnce sync.Once
	local     Provider
	localErr  error

	remoteMu  sync.Mutex
	remoteKey remoteKey
	remote    Provider

	// Construction seams, replaced in tests.
	newRemote func(cfg OpenAIConfig) (Provider, error)
	newLocal  func(cfg FastEmbedConfig) (Provider, error)
}

type remoteKey struct {
	apiKey  string
	baseURL string
}

// NewService creates the embedding service.
func NewService(resolver *tenant.Resolver, logger *zap.Logger) *Service {
	defaults := resolver.Defaults()
	return &Service{
		resolver:      resolver,
		logger:        logger.Named("embeddings"),
		localModel:    defaults.LocalEmbeddingModel,
		localCacheDir: defaults.ModelCacheDir,
		newRemote:     func(cfg OpenAIConfig) (Provider, error) { return NewOpenAIProvider(cfg) },
		newLocal:      func(cfg FastEmbedConfig) (Provider, error) { return NewFastEmbedProvider(cfg) },
	}
}

// Embed generates one vector per text, preserving order. Empty input
// returns an empty result without touching any provider.
func (s *Service) Embed(ctx context.Context, texts []string, bot *tenant.Bot) ([][]float32, error) {
	if len(texts) == 0 {
		s.logger.Warn("empty text list provided for embedding")
		return [][]float32{}, nil
	}

	provider, err := s.providerFor(ctx, bot)
	if err != nil {
		return nil, err
	}

	vectors, err := provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("generated embeddings",
		zap.Int("texts", len(texts)),
		zap.Int("dimension", provider.Dimension()),
	)
	return vectors, nil
}

// EmbedQuery generates the embedding for a single query string.
func (s *Service) EmbedQuery(ctx context.Context, text string, bot *tenant.Bot) ([]float32, error) {
	provider, err := s.providerFor(ctx, bot)
	if err != nil {
		return nil, err
	}
	return provider.EmbedQuery(ctx, text)
}

// Close releases the lazily loaded local model, if any.
func (s *Service) Close() error {
	if s.local != nil {
		return s.local.Close()
	}
	return nil
}

// providerFor applies the strategy selection rule for one call.
func (s *Service) providerFor(ctx context.Context, bot *tenant.Bot) (Provider, error) {
	eff, err := s.resolver.Resolve(ctx, bot)
	if err != nil {
		return nil, err
	}

	useLocal := eff.Provider.UsesLocalEmbeddings()
	if bot == nil {
		// No bot, no per-tenant cost to protect: only a local/ollama
		// global provider embeds in process.
		useLocal = eff.Provider.IsOllama()
	}
	if useLocal {
		return s.localProvider()
	}
	return s.remoteProvider(eff.APIKey, eff.BaseURL)
}

// localProvider loads the local model exactly once, process-wide.
func (s *Service) localProvider() (Provider, error) {
	s.localOnce.Do(func() {
		s.logger.Info("loading local embedding model", zap.String("model", s.localModel))
		s.local, s.localErr = s.newLocal(FastEmbedConfig{
			Model:    s.localModel,
			CacheDir: s.localCacheDir,
		})
		if s.localErr == nil {
			s.logger.Info("local embedding model loaded")
		}
	})
	if s.localErr != nil {
		return nil, fmt.Errorf("loading local embedding model: %w", s.localErr)
	}
	return s.local, nil
}

// remoteProvider returns the cached remote client, rebuilding it when the
// credential or endpoint changed.
func (s *Service) remoteProvider(apiKey, baseURL string) (Provider, error) {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()

	key := remoteKey{apiKey: apiKey, baseURL: baseURL}
	if s.remote != nil && s.remoteKey == key {
		return s.remote, nil
	}

	provider, err := s.newRemote(OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   s.resolver.Defaults().EmbeddingModel,
	})
	if err != nil {
		return nil, err
	}

	s.remote = provider
	s.remoteKey = key
	s.logger.Info("remote embedding client initialized")
	return provider, nil
}
