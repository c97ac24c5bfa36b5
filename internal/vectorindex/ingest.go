package vectorindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/model"
)

// SmokeQuery is searched after ingestion to confirm the index answers.
const SmokeQuery = "What is machine learning?"

// IngestConfig controls how a corpus is split and embedded.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// BatchSize is the number of chunks sent per embedding request.
	BatchSize int
	// Force re-imports files whose hash is unchanged.
	Force bool
}

func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		BatchSize:    32,
	}
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Files        int `json:"files"`
	Imported     int `json:"imported"`
	Skipped      int `json:"skipped"`
	Chunks       int `json:"chunks"`
	SmokeResults int `json:"smoke_results"`
}

// Ingest loads every .txt and .md file under path (or path itself when it
// is a file), splits it, embeds the chunks and writes them to idx.
func Ingest(ctx context.Context, idx Index, embedder llm.Embedder, path string, cfg IngestConfig) (IngestReport, error) {
	var report IngestReport

	splitter, err := NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return report, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultIngestConfig().BatchSize
	}

	files, err := corpusFiles(path)
	if err != nil {
		return report, err
	}
	if len(files) == 0 {
		return report, fmt.Errorf("no .txt or .md files found in %s", path)
	}
	report.Files = len(files)

	dim := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		raw, err := os.ReadFile(file)
		if err != nil {
			return report, fmt.Errorf("read %s: %w", file, err)
		}
		sum := sha256.Sum256(raw)
		hash := hex.EncodeToString(sum[:])

		if !cfg.Force {
			prev, err := idx.DocumentHash(ctx, file)
			if err != nil {
				return report, fmt.Errorf("lookup %s: %w", file, err)
			}
			if prev == hash {
				slog.Info("skipping unchanged file", "file", file)
				report.Skipped++
				continue
			}
		}

		texts := splitter.Split(string(raw))
		chunks, err := embedChunks(ctx, embedder, texts, cfg.BatchSize)
		if err != nil {
			return report, fmt.Errorf("embed %s: %w", file, err)
		}
		if len(chunks) > 0 {
			dim = len(chunks[0].Embedding)
		}

		if err := idx.ReplaceDocument(ctx, model.Document{Source: file, SHA256: hash}, chunks); err != nil {
			return report, fmt.Errorf("store %s: %w", file, err)
		}
		slog.Info("imported file", "file", file, "chunks", len(chunks))
		report.Imported++
		report.Chunks += len(chunks)
	}

	if rec, ok := idx.(interface{ SetIndexInfo(model.IndexInfo) error }); ok && dim > 0 {
		info := model.IndexInfo{
			EmbeddingModel: embedder.ModelID(),
			Dimensions:     dim,
			ChunkSize:      cfg.ChunkSize,
			ChunkOverlap:   cfg.ChunkOverlap,
		}
		if err := rec.SetIndexInfo(info); err != nil {
			return report, fmt.Errorf("record index info: %w", err)
		}
	}

	results, err := idx.Search(ctx, SmokeQuery, 2)
	if err != nil {
		slog.Warn("smoke query failed", "query", SmokeQuery, "error", err)
	} else {
		report.SmokeResults = len(results)
		slog.Info("smoke query", "query", SmokeQuery, "results", len(results))
	}
	return report, nil
}

func embedChunks(ctx context.Context, embedder llm.Embedder, texts []string, batch int) ([]model.Chunk, error) {
	chunks := make([]model.Chunk, 0, len(texts))
	for start := 0; start < len(texts); start += batch {
		end := min(start+batch, len(texts))
		vecs, err := embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(vecs))
		}
		for i, v := range vecs {
			chunks = append(chunks, model.Chunk{Seq: start + i, Text: texts[start+i], Embedding: v})
		}
	}
	return chunks, nil
}

func corpusFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".txt", ".md":
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
