package model

import "time"

// Document is one imported source file of the study corpus.
type Document struct {
	ID         int64     `json:"id"`
	Source     string    `json:"source"`
	SHA256     string    `json:"sha256"`
	ImportedAt time.Time `json:"imported_at"`
	Chunks     int       `json:"chunks"`
}

// Chunk is a contiguous slice of a document together with its embedding.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Seq        int       `json:"seq"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
}

// IndexInfo describes how the stored embeddings were produced. Searching
// with a different embedding model gives meaningless rankings.
type IndexInfo struct {
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap"`
}
