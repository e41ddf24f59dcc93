// Package tenant provides bot (tenant) records and per-request AI
// configuration resolution.
//
// A bot is one logical chatbot: its identifier isolates its knowledge base
// in the vector store, and its optional override fields take precedence
// over system settings and static defaults when resolving the effective AI
// configuration for a request.
package tenant

import (
	"context"
	"errors"
	"sync"
)

// Common errors.
var (
	ErrNotFound  = errors.New("bot not found")
	ErrInvalidID = errors.New("invalid bot ID")
)

// Bot is one tenant record. Empty override fields mean "inherit from the
// global configuration". The core treats records as read-only.
type Bot struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Provider overrides the global AI provider for this bot.
	Provider string `json:"provider,omitempty"`

	// ModelID overrides the chat model.
	ModelID string `json:"model_id,omitempty"`

	// AIBaseURL overrides the provider endpoint.
	AIBaseURL string `json:"ai_base_url,omitempty"`

	// AIAPIKey overrides the provider credential.
	AIAPIKey string `json:"ai_api_key,omitempty"`

	// Temperature overrides sampling temperature. Nil means inherit.
	Temperature *float64 `json:"temperature,omitempty"`
}

// Store is the bot registry contract. Records are owned externally; the
// core only reads them, but the registry supports full CRUD so the admin
// surface can manage tenants.
type Store interface {
	Get(ctx context.Context, id string) (*Bot, error)
	Put(ctx context.Context, bot *Bot) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Bot, error)
}

// MemoryStore is an in-memory bot registry for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	bots map[string]Bot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bots: make(map[string]Bot)}
}

// Get returns the bot with the given ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bot, ok := s.bots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &bot, nil
}

// Put stores the bot.
func (s *MemoryStore) Put(_ context.Context, bot *Bot) error {
	if bot.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[bot.ID] = *bot
	return nil
}

// Delete removes the bot with the given ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bots, id)
	return nil
}

// List returns all bots.
func (s *MemoryStore) List(_ context.Context) ([]*Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Bot, 0, len(s.bots))
	for _, bot := range s.bots {
		b := bot
		out = append(out, &b)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
