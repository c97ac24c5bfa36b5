package vectorindex

import (
	"context"
	"sync"

	"github.com/pavelanni/mentor/internal/model"
)

// Static is an in-memory index without embeddings. Search returns the
// stored passages in insertion order. Err, when set, fails every Search.
type Static struct {
	mu       sync.RWMutex
	passages []string
	docs     map[string]staticDoc
	order    []string
	Err      error
}

type staticDoc struct {
	hash  string
	texts []string
}

// NewStatic returns an index seeded with passages.
func NewStatic(passages ...string) *Static {
	return &Static{passages: passages, docs: map[string]staticDoc{}}
}

func (s *Static) Search(_ context.Context, _ string, k int) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := append([]string(nil), s.passages...)
	for _, src := range s.order {
		all = append(all, s.docs[src].texts...)
	}
	if k < len(all) {
		all = all[:k]
	}
	return all, nil
}

func (s *Static) DocumentHash(_ context.Context, source string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[source].hash, nil
}

func (s *Static) ReplaceDocument(_ context.Context, doc model.Document, chunks []model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.Source]; !ok {
		s.order = append(s.order, doc.Source)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	s.docs[doc.Source] = staticDoc{hash: doc.SHA256, texts: texts}
	return nil
}

func (s *Static) Close() error { return nil }
