// Package chat streams generated answers for a bot's question over the
// provider resolved for that bot.
package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/botd/internal/knowledge"
	"github.com/fyrsmithlabs/botd/internal/prompt"
	"github.com/fyrsmithlabs/botd/internal/tenant"
)

const (
	// streamBuffer bounds the token channel so a stalled consumer
	// backpressures generation instead of growing memory.
	streamBuffer = 32

	// generationTimeout caps one streaming generation end to end.
	generationTimeout = 60 * time.Second

	// loopbackAlias is the container-visible name for the host's
	// loopback interface. The service and a local inference server run
	// in separate network namespaces, so a literal localhost base URL
	// would point at the wrong machine.
	loopbackAlias = "host.docker.internal"
)

// Retriever fetches the context chunks relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, bot *tenant.Bot, question string) ([]knowledge.RetrievedChunk, error)
}

// Dispatcher resolves a bot's provider and streams the generated answer.
//
// The stream contract: errors before generation starts (retrieval,
// resolution) fail the call; errors after the first token cannot be
// returned, so they surface as a final inline error token. The channel
// is always closed.
type Dispatcher struct {
	retriever  Retriever
	resolver   *tenant.Resolver
	logger     *zap.Logger
	httpClient *http.Client

	alias string

	mu        sync.Mutex
	clientKey clientKey
	client    llms.Model

	// Construction seam, replaced in tests.
	newClient func(apiKey, baseURL string) (llms.Model, error)
}

type clientKey struct {
	apiKey  string
	baseURL string
}

// NewDispatcher creates the generation dispatcher.
func NewDispatcher(retriever Retriever, resolver *tenant.Resolver, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		retriever:  retriever,
		resolver:   resolver,
		logger:     logger.Named("chat"),
		httpClient: &http.Client{Timeout: generationTimeout},
		alias:      loopbackAlias,
		newClient:  newOpenAIClient,
	}
}

func newOpenAIClient(apiKey, baseURL string) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(apiKey)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	return openai.New(opts...)
}

// Stream answers a question for a bot. It returns a finite token channel
// that is closed when generation ends; the sequence cannot be restarted
// or resumed. Retrieval and resolution failures are returned before any
// channel exists.
func (d *Dispatcher) Stream(ctx context.Context, bot *tenant.Bot, question string, history []prompt.Message) (<-chan string, error) {
	chunks, err := d.retriever.Retrieve(ctx, bot, question)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	systemPrompt := prompt.BuildSystemPrompt(bot, chunks)
	messages := prompt.BuildMessages(systemPrompt, history, question)

	eff, err := d.resolver.Resolve(ctx, bot)
	if err != nil {
		return nil, err
	}

	d.logger.Info("dispatching generation",
		zap.String("bot_id", bot.ID),
		zap.String("provider", string(eff.Provider)),
		zap.String("model", eff.Model),
		zap.Int("context_chunks", len(chunks)),
		zap.Int("messages", len(messages)),
	)

	eff.BaseURL = rewriteLoopback(eff.BaseURL, d.alias)

	tokens := make(chan string, streamBuffer)
	go func() {
		defer close(tokens)
		if eff.Provider.IsOllama() {
			d.streamOllama(ctx, eff, messages, tokens)
		} else {
			d.streamOpenAI(ctx, eff, messages, tokens)
		}
	}()
	return tokens, nil
}

// streamOpenAI serves the hosted provider and every OpenAI-compatible
// endpoint (custom, huggingface).
func (d *Dispatcher) streamOpenAI(ctx context.Context, eff tenant.EffectiveConfig, messages []prompt.Message, tokens chan<- string) {
	llm, err := d.clientFor(eff.APIKey, eff.BaseURL)
	if err != nil {
		d.logger.Error("building chat client", zap.Error(err))
		emit(ctx, tokens, fmt.Sprintf("I apologize, but I encountered an error: %v", err))
		return
	}

	_, err = llm.GenerateContent(ctx, toLLMMessages(messages),
		llms.WithModel(eff.Model),
		llms.WithTemperature(eff.Temperature),
		llms.WithMaxTokens(eff.MaxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			if !emit(ctx, tokens, string(chunk)) {
				return ctx.Err()
			}
			return nil
		}),
	)
	if err != nil && ctx.Err() == nil {
		d.logger.Error("generation failed", zap.Error(err))
		emit(ctx, tokens, fmt.Sprintf("I apologize, but I encountered an error: %v", err))
	}
}

// clientFor returns the cached completion client, rebuilding it when the
// resolved credential or endpoint changed since the last call.
func (d *Dispatcher) clientFor(apiKey, baseURL string) (llms.Model, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := clientKey{apiKey: apiKey, baseURL: baseURL}
	if d.client != nil && d.clientKey == key {
		return d.client, nil
	}

	client, err := d.newClient(apiKey, baseURL)
	if err != nil {
		return nil, err
	}
	d.client = client
	d.clientKey = key
	d.logger.Info("chat client initialized")
	return client, nil
}

func toLLMMessages(messages []prompt.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		var role schema.ChatMessageType
		switch m.Role {
		case prompt.RoleSystem:
			role = schema.ChatMessageTypeSystem
		case prompt.RoleAssistant:
			role = schema.ChatMessageTypeAI
		default:
			role = schema.ChatMessageTypeHuman
		}
		out[i] = llms.TextParts(role, m.Content)
	}
	return out
}

// emit delivers one token unless the consumer is gone.
func emit(ctx context.Context, tokens chan<- string, s string) bool {
	select {
	case tokens <- s:
		return true
	case <-ctx.Done():
		return false
	}
}

// rewriteLoopback swaps a literal loopback host in a base URL for the
// container-visible alias. Anything else passes through untouched.
func rewriteLoopback(rawURL, alias string) string {
	if rawURL == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return rawURL
	}
	if port := u.Port(); port != "" {
		u.Host = alias + ":" + port
	} else {
		u.Host = alias
	}
	return u.String()
}
