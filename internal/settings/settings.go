// Package settings provides the mutable system-setting store.
//
// Settings are the middle layer of AI configuration resolution: per-bot
// overrides win over settings, settings win over static config defaults.
// The store is deliberately a small key-value contract so the backing
// persistence can be swapped (bbolt in production, memory in tests).
package settings

import (
	"context"
	"errors"
	"sync"
)

// Well-known setting keys. These are the only keys the resolver reads.
const (
	KeyAIProvider        = "AI_PROVIDER"
	KeyOpenAIAPIKey      = "OPENAI_API_KEY"
	KeyOllamaBaseURL     = "OLLAMA_BASE_URL"
	KeyCustomBaseURL     = "CUSTOM_BASE_URL"
	KeyCustomModelName   = "CUSTOM_MODEL_NAME"
	KeyHuggingFaceAPIKey = "HUGGINGFACE_API_KEY"
)

// ErrStoreUnavailable indicates the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("settings store unavailable")

// Store is the system-setting store contract.
//
// Reads must eventually reflect writes made through the same store; no
// stronger consistency is required beyond what the backend guarantees.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes through to the backing store.
	Set(ctx context.Context, key, value string) error

	// Snapshot returns a copy of all settings for one resolution pass.
	Snapshot(ctx context.Context) (map[string]string, error)
}

// MemoryStore is an in-memory Store for tests and embedded use.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores the value for key.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Snapshot returns a copy of all settings.
func (s *MemoryStore) Snapshot(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
