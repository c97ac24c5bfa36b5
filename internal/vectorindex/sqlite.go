package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/model"
	"github.com/pavelanni/mentor/internal/store"
)

// SQLite ranks chunks held in a store.Store by cosine similarity. Chunks
// are loaded into memory on the first search and reloaded after writes.
type SQLite struct {
	store    *store.Store
	embedder llm.Embedder

	mu     sync.RWMutex
	chunks []model.Chunk
	loaded bool
}

// NewSQLite wraps st. The store is closed by Close.
func NewSQLite(st *store.Store, embedder llm.Embedder) *SQLite {
	return &SQLite{store: st, embedder: embedder}
}

func (s *SQLite) Search(ctx context.Context, query string, k int) ([]string, error) {
	const op = "search"
	if k <= 0 {
		return nil, nil
	}

	chunks, err := s.load()
	if err != nil {
		return nil, opErr(op, OperationErrorQueryFailed, "load chunks failed", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, opErr(op, OperationErrorEmbedFailed, "embed query failed", err)
	}
	if len(vecs) != 1 {
		return nil, opErr(op, OperationErrorEmbedFailed, fmt.Sprintf("expected 1 query vector, got %d", len(vecs)), nil)
	}

	candidates := make([]scored, len(chunks))
	for i, c := range chunks {
		candidates[i] = scored{id: c.ID, text: c.Text, score: cosineSimilarity(vecs[0], c.Embedding)}
	}
	return rank(candidates, k), nil
}

func (s *SQLite) load() ([]model.Chunk, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.chunks, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.chunks, nil
	}
	chunks, err := s.store.ListChunks()
	if err != nil {
		return nil, err
	}
	s.chunks = chunks
	s.loaded = true
	slog.Debug("loaded chunk embeddings", "chunks", len(chunks))
	return chunks, nil
}

func (s *SQLite) DocumentHash(_ context.Context, source string) (string, error) {
	return s.store.DocumentHash(source)
}

func (s *SQLite) ReplaceDocument(_ context.Context, doc model.Document, chunks []model.Chunk) error {
	if _, err := s.store.ReplaceDocument(doc, chunks); err != nil {
		return opErr("replace_document", OperationErrorQueryFailed, doc.Source, err)
	}
	s.mu.Lock()
	s.loaded = false
	s.chunks = nil
	s.mu.Unlock()
	return nil
}

// SetIndexInfo records how the stored embeddings were produced.
func (s *SQLite) SetIndexInfo(info model.IndexInfo) error {
	return s.store.SetIndexInfo(info)
}

func (s *SQLite) Close() error {
	return s.store.Close()
}
