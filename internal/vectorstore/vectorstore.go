// Package vectorstore provides tenant-filtered vector storage over Qdrant.
//
// Exactly two collections back the store, one per supported embedding
// dimensionality; the dimensionality of a write batch or query vector
// deterministically routes the call. Every read is filtered by the bot
// identifier: cross-tenant leakage of retrieved content is a correctness
// violation, not a tuning concern.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/botd/internal/embeddings"
)

// Collection names, one per supported dimensionality.
const (
	CollectionRemote = "botd_embeddings"
	CollectionLocal  = "botd_embeddings_local"

	// PayloadBotID is the payload field carrying the tenant identifier.
	// A keyword index on this field makes the per-bot filter cheap.
	PayloadBotID = "bot_id"
)

// Common errors.
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrConnectionFailed  = errors.New("connection to vector store failed")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyBatch        = errors.New("empty record batch")
)

// Record is one vector point with its payload.
type Record struct {
	// ID is a globally unique point identifier (UUID).
	ID string

	// Vector is the embedding. All vectors in one batch must share a
	// dimensionality.
	Vector []float32

	// Payload carries chunk metadata; the store injects the bot_id field.
	Payload map[string]any
}

// ScoredChunk is one search hit: ephemeral, produced per query.
type ScoredChunk struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// HealthStatus is the store health record. Health checks never fail hard;
// connectivity problems are captured in Error.
type HealthStatus struct {
	Healthy     bool   `json:"healthy"`
	Collections int    `json:"collections"`
	Error       string `json:"error,omitempty"`
}

// Store is the vector store contract.
type Store interface {
	// Init creates both collections and their bot_id payload indexes if
	// absent. Idempotent: re-running on an initialized store is a no-op.
	Init(ctx context.Context) error

	// Upsert writes records for a bot into the collection matching the
	// batch's dimensionality.
	Upsert(ctx context.Context, botID string, records []Record) error

	// Search returns up to limit chunks for the bot with similarity >=
	// threshold, ordered by descending similarity.
	Search(ctx context.Context, botID string, vector []float32, limit int, threshold float32) ([]ScoredChunk, error)

	// DeleteTenant removes the bot's vectors from every known collection.
	// Missing collections are skipped; partial cleanup still succeeds.
	DeleteTenant(ctx context.Context, botID string) error

	// Health reports connectivity. Never returns an error.
	Health(ctx context.Context) HealthStatus

	// Close releases the underlying connection.
	Close() error
}

// collectionFor routes a vector dimensionality to its collection.
func collectionFor(dimension int) (string, error) {
	switch dimension {
	case embeddings.RemoteDimension:
		return CollectionRemote, nil
	case embeddings.LocalDimension:
		return CollectionLocal, nil
	default:
		return "", fmt.Errorf("%w: unsupported dimension %d", ErrDimensionMismatch, dimension)
	}
}

// allCollections lists every collection the store may own, with the
// vector size each was created with.
func allCollections() map[string]uint64 {
	return map[string]uint64{
		CollectionRemote: embeddings.RemoteDimension,
		CollectionLocal:  embeddings.LocalDimension,
	}
}
