package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/botd/internal/tenant"
	"github.com/fyrsmithlabs/botd/internal/vectorstore"
)

type stubEmbedder struct {
	dim      int
	embedErr error
	short    bool
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string, _ *tenant.Bot) ([][]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	n := len(texts)
	if s.short && n > 0 {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, s.dim)
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string, bot *tenant.Bot) ([]float32, error) {
	vecs, err := s.Embed(ctx, []string{text}, bot)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type stubStore struct {
	vectorstore.Store

	upserts   [][]vectorstore.Record
	upsertBot string
	searchErr error
	hits      []vectorstore.ScoredChunk
	deleted   []string
}

func (s *stubStore) Upsert(_ context.Context, botID string, records []vectorstore.Record) error {
	s.upsertBot = botID
	s.upserts = append(s.upserts, records)
	return nil
}

func (s *stubStore) Search(_ context.Context, _ string, _ []float32, _ int, _ float32) ([]vectorstore.ScoredChunk, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.hits, nil
}

func (s *stubStore) DeleteTenant(_ context.Context, botID string) error {
	s.deleted = append(s.deleted, botID)
	return nil
}

func TestRetrieve(t *testing.T) {
	store := &stubStore{hits: []vectorstore.ScoredChunk{
		{ID: "1", Score: 0.92, Payload: map[string]any{"text": "first"}},
		{ID: "2", Score: 0.71, Payload: map[string]any{"text": "second"}},
	}}
	svc := NewService(&stubEmbedder{dim: 384}, store, zap.NewNop())

	chunks, err := svc.Retrieve(context.Background(), &tenant.Bot{ID: "bot-1"}, "how do I reset my password?")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first", chunks[0].Text)
	assert.InDelta(t, 0.92, chunks[0].Score, 1e-6)
}

func TestRetrieveEmptyIsNotAnError(t *testing.T) {
	svc := NewService(&stubEmbedder{dim: 384}, &stubStore{}, zap.NewNop())

	chunks, err := svc.Retrieve(context.Background(), &tenant.Bot{ID: "bot-1"}, "anything")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRetrieveSkipsHitsWithoutText(t *testing.T) {
	store := &stubStore{hits: []vectorstore.ScoredChunk{
		{ID: "1", Score: 0.9, Payload: map[string]any{"chunk_index": int64(0)}},
		{ID: "2", Score: 0.8, Payload: map[string]any{"text": "keep"}},
	}}
	svc := NewService(&stubEmbedder{dim: 384}, store, zap.NewNop())

	chunks, err := svc.Retrieve(context.Background(), &tenant.Bot{ID: "bot-1"}, "q")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "keep", chunks[0].Text)
}

func TestRetrieveSearchError(t *testing.T) {
	store := &stubStore{searchErr: errors.New("unavailable")}
	svc := NewService(&stubEmbedder{dim: 384}, store, zap.NewNop())

	_, err := svc.Retrieve(context.Background(), &tenant.Bot{ID: "bot-1"}, "q")
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	store := &stubStore{}
	svc := NewService(&stubEmbedder{dim: 384}, store, zap.NewNop())

	chunks := []Chunk{
		{Text: "alpha", Index: 0, Source: "faq.md", TokenCount: 12},
		{Text: "beta", Index: 1, Source: "faq.md"},
	}
	require.NoError(t, svc.Ingest(context.Background(), &tenant.Bot{ID: "bot-1"}, chunks))

	require.Len(t, store.upserts, 1)
	records := store.upserts[0]
	require.Len(t, records, 2)
	assert.Equal(t, "bot-1", store.upsertBot)
	assert.NotEmpty(t, records[0].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)
	assert.Equal(t, "alpha", records[0].Payload["text"])
	assert.Equal(t, int64(0), records[0].Payload["chunk_index"])
	assert.Equal(t, "faq.md", records[0].Payload["source"])
	assert.Equal(t, int64(12), records[0].Payload["token_count"])
	_, hasTokens := records[1].Payload["token_count"]
	assert.False(t, hasTokens)
}

func TestIngestEmpty(t *testing.T) {
	svc := NewService(&stubEmbedder{dim: 384}, &stubStore{}, zap.NewNop())
	err := svc.Ingest(context.Background(), &tenant.Bot{ID: "bot-1"}, nil)
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestIngestCountMismatchStoresNothing(t *testing.T) {
	store := &stubStore{}
	svc := NewService(&stubEmbedder{dim: 384, short: true}, store, zap.NewNop())

	err := svc.Ingest(context.Background(), &tenant.Bot{ID: "bot-1"}, []Chunk{
		{Text: "a"}, {Text: "b"},
	})
	assert.ErrorIs(t, err, ErrCountMismatch)
	assert.Empty(t, store.upserts)
}

func TestIngestEmbedErrorStoresNothing(t *testing.T) {
	store := &stubStore{}
	svc := NewService(&stubEmbedder{embedErr: errors.New("rate limited")}, store, zap.NewNop())

	err := svc.Ingest(context.Background(), &tenant.Bot{ID: "bot-1"}, []Chunk{{Text: "a"}})
	assert.Error(t, err)
	assert.Empty(t, store.upserts)
}

func TestPurge(t *testing.T) {
	store := &stubStore{}
	svc := NewService(&stubEmbedder{dim: 384}, store, zap.NewNop())

	require.NoError(t, svc.Purge(context.Background(), "bot-1"))
	assert.Equal(t, []string{"bot-1"}, store.deleted)
}
