// Package embeddings provides embedding generation via multiple providers.
//
// Two strategies exist: a remote OpenAI-compatible API (1536-dim
// text-embedding-3-small) and a local in-process ONNX model (384-dim
// BAAI/bge-small-en-v1.5). The Service selects per call so that any bot
// not on the hosted provider never incurs hosted API cost, even for
// embeddings.
package embeddings

import (
	"context"
	"errors"
)

// Fixed dimensionalities for the two supported strategies. The vector
// store routes writes and queries to a collection by these sizes.
const (
	RemoteDimension = 1536
	LocalDimension  = 384
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrCountMismatch indicates the provider returned a different number
	// of vectors than texts requested.
	ErrCountMismatch = errors.New("embedding count mismatch")
)

// Provider is the interface for embedding providers.
//
// Implementations must preserve input order and cardinality and be safe
// for concurrent use.
type Provider interface {
	// EmbedDocuments generates one vector per input text, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates a vector for a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}
