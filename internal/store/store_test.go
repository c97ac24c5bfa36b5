package store

import (
	"path/filepath"
	"testing"

	"github.com/pavelanni/mentor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testChunks(texts ...string) []model.Chunk {
	chunks := make([]model.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = model.Chunk{Text: text, Embedding: []float32{float32(i), 1, -0.5}}
	}
	return chunks
}

func TestReplaceDocument(t *testing.T) {
	s := newTestStore(t)

	count, err := s.ChunkCount()
	if err != nil {
		t.Fatalf("ChunkCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 chunks, got %d", count)
	}

	id, err := s.ReplaceDocument(model.Document{Source: "ml.md", SHA256: "aaa"}, testChunks("one", "two", "three"))
	if err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero document id")
	}

	chunks, err := s.ListChunks()
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Seq != i {
			t.Errorf("chunk %d: expected seq %d, got %d", i, i, c.Seq)
		}
		if c.DocumentID != id {
			t.Errorf("chunk %d: expected document %d, got %d", i, id, c.DocumentID)
		}
		if len(c.Embedding) != 3 || c.Embedding[0] != float32(i) || c.Embedding[2] != -0.5 {
			t.Errorf("chunk %d: embedding not round-tripped: %v", i, c.Embedding)
		}
	}

	// Re-importing the same source keeps the id and replaces its chunks.
	id2, err := s.ReplaceDocument(model.Document{Source: "ml.md", SHA256: "bbb"}, testChunks("only"))
	if err != nil {
		t.Fatalf("ReplaceDocument again: %v", err)
	}
	if id2 != id {
		t.Errorf("expected same document id %d, got %d", id, id2)
	}
	count, err = s.ChunkCount()
	if err != nil {
		t.Fatalf("ChunkCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 chunk after replace, got %d", count)
	}

	hash, err := s.DocumentHash("ml.md")
	if err != nil {
		t.Fatalf("DocumentHash: %v", err)
	}
	if hash != "bbb" {
		t.Errorf("expected hash bbb, got %q", hash)
	}
}

func TestDocumentHashMissing(t *testing.T) {
	s := newTestStore(t)
	hash, err := s.DocumentHash("missing.txt")
	if err != nil {
		t.Fatalf("DocumentHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}
}

func TestListAndDeleteDocuments(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ReplaceDocument(model.Document{Source: "b.txt", SHA256: "b"}, testChunks("x", "y")); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}
	if _, err := s.ReplaceDocument(model.Document{Source: "a.txt", SHA256: "a"}, testChunks("z")); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}

	docs, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Source != "a.txt" || docs[0].Chunks != 1 {
		t.Errorf("unexpected first document: %+v", docs[0])
	}
	if docs[1].Source != "b.txt" || docs[1].Chunks != 2 {
		t.Errorf("unexpected second document: %+v", docs[1])
	}

	if err := s.DeleteDocument("b.txt"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	count, err := s.ChunkCount()
	if err != nil {
		t.Fatalf("ChunkCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected chunks of deleted document to cascade, %d left", count)
	}
	if err := s.DeleteDocument("never-imported.txt"); err != nil {
		t.Errorf("DeleteDocument of missing source: %v", err)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMetadata("embedding_model")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value, got %q", v)
	}

	if err := s.SetMetadata("embedding_model", "all-minilm"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata("embedding_model", "nomic-embed-text"); err != nil {
		t.Fatalf("SetMetadata overwrite: %v", err)
	}
	v, err = s.GetMetadata("embedding_model")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if v != "nomic-embed-text" {
		t.Errorf("expected overwritten value, got %q", v)
	}
}

func TestIndexInfo(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.GetIndexInfo()
	if err != nil {
		t.Fatalf("GetIndexInfo on fresh store: %v", err)
	}
	if empty != (model.IndexInfo{}) {
		t.Errorf("expected zero IndexInfo, got %+v", empty)
	}

	want := model.IndexInfo{EmbeddingModel: "all-minilm", Dimensions: 384, ChunkSize: 1000, ChunkOverlap: 200}
	if err := s.SetIndexInfo(want); err != nil {
		t.Fatalf("SetIndexInfo: %v", err)
	}
	got, err := s.GetIndexInfo()
	if err != nil {
		t.Fatalf("GetIndexInfo: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.ReplaceDocument(model.Document{Source: "notes.md", SHA256: "h"}, testChunks("kept")); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	chunks, err := s.ListChunks()
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "kept" {
		t.Errorf("expected persisted chunk, got %+v", chunks)
	}
}
