// Package knowledge ties embedding generation to vector storage: it
// ingests document chunks for a bot and retrieves the chunks most
// relevant to a question.
package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/botd/internal/tenant"
	"github.com/fyrsmithlabs/botd/internal/vectorstore"
)

// Retrieval parameters. Tuned against the ingestion chunk size; changing
// either changes answer quality for every bot at once.
const (
	// MaxContextChunks caps how many chunks feed one prompt.
	MaxContextChunks = 3

	// SimilarityThreshold is the minimum cosine similarity for a chunk
	// to count as relevant.
	SimilarityThreshold = 0.6
)

// Common errors.
var (
	ErrNoChunks      = errors.New("no chunks to ingest")
	ErrCountMismatch = errors.New("embedding count does not match chunk count")
)

// Chunk is one unit of ingested knowledge.
type Chunk struct {
	// Text is the chunk content.
	Text string `json:"text"`

	// Index is the chunk's position within its source document.
	Index int `json:"chunk_index"`

	// Source identifies the originating document.
	Source string `json:"source,omitempty"`

	// TokenCount is the approximate token length, when known.
	TokenCount int `json:"token_count,omitempty"`
}

// RetrievedChunk is one retrieval hit, ordered by descending similarity.
type RetrievedChunk struct {
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Embedder generates embeddings with the strategy resolved for a bot.
type Embedder interface {
	Embed(ctx context.Context, texts []string, bot *tenant.Bot) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string, bot *tenant.Bot) ([]float32, error)
}

// Service performs retrieval and ingestion against the vector store.
type Service struct {
	embedder Embedder
	store    vectorstore.Store
	logger   *zap.Logger
}

// NewService creates the knowledge service.
func NewService(embedder Embedder, store vectorstore.Store, logger *zap.Logger) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
		logger:   logger.Named("knowledge"),
	}
}

// Retrieve embeds the question and returns the bot's most relevant
// chunks. An empty result is a valid outcome, not an error; the caller
// decides how to answer without context.
func (s *Service) Retrieve(ctx context.Context, bot *tenant.Bot, question string) ([]RetrievedChunk, error) {
	vector, err := s.embedder.EmbedQuery(ctx, question, bot)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	hits, err := s.store.Search(ctx, bot.ID, vector, MaxContextChunks, SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}

	chunks := make([]RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		text, _ := hit.Payload["text"].(string)
		if text == "" {
			continue
		}
		chunks = append(chunks, RetrievedChunk{Text: text, Score: hit.Score})
	}

	s.logger.Debug("retrieved context",
		zap.String("bot_id", bot.ID),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

// Ingest embeds chunks and writes them to the bot's knowledge base.
// The write is all-or-nothing: an embedding failure or count mismatch
// stores nothing.
func (s *Service) Ingest(ctx context.Context, bot *tenant.Bot, chunks []Chunk) error {
	if len(chunks) == 0 {
		return ErrNoChunks
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts, bot)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", ErrCountMismatch, len(vectors), len(chunks))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		payload := map[string]any{
			"text":        c.Text,
			"chunk_index": int64(c.Index),
		}
		if c.Source != "" {
			payload["source"] = c.Source
		}
		if c.TokenCount > 0 {
			payload["token_count"] = int64(c.TokenCount)
		}
		records[i] = vectorstore.Record{
			ID:      uuid.NewString(),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	if err := s.store.Upsert(ctx, bot.ID, records); err != nil {
		return fmt.Errorf("storing chunks: %w", err)
	}

	s.logger.Info("ingested knowledge",
		zap.String("bot_id", bot.ID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// Purge removes every stored chunk for the bot.
func (s *Service) Purge(ctx context.Context, botID string) error {
	if err := s.store.DeleteTenant(ctx, botID); err != nil {
		return fmt.Errorf("purging knowledge base: %w", err)
	}
	s.logger.Info("purged knowledge base", zap.String("bot_id", botID))
	return nil
}
