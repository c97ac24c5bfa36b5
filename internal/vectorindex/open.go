package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/store"
)

const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
	BackendNone   = "none"
)

// Config selects and configures an index backend.
type Config struct {
	Backend    string
	SQLitePath string
	Qdrant     QdrantConfig
}

func DefaultConfig() Config {
	return Config{
		Backend:    BackendSQLite,
		SQLitePath: "mentor-index.db",
		Qdrant:     DefaultQdrantConfig(),
	}
}

// Open opens an existing index for searching. A missing SQLite file or a
// corpus with no chunks is reported as OperationErrorEmptyIndex, and
// BackendNone yields a nil Index with no error.
func Open(ctx context.Context, cfg Config, embedder llm.Embedder) (Index, error) {
	switch cfg.Backend {
	case BackendNone, "":
		return nil, nil
	case BackendSQLite:
		if _, err := os.Stat(cfg.SQLitePath); err != nil {
			return nil, opErr("open", OperationErrorEmptyIndex, fmt.Sprintf("index file %s not found, run mentor ingest first", cfg.SQLitePath), err)
		}
		st, err := store.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		n, err := st.ChunkCount()
		if err != nil {
			st.Close()
			return nil, err
		}
		if n == 0 {
			st.Close()
			return nil, opErr("open", OperationErrorEmptyIndex, fmt.Sprintf("index %s has no chunks", cfg.SQLitePath), nil)
		}
		info, err := st.GetIndexInfo()
		if err != nil {
			st.Close()
			return nil, err
		}
		if info.EmbeddingModel != "" && info.EmbeddingModel != embedder.ModelID() {
			slog.Warn("index was built with a different embedding model",
				"index_model", info.EmbeddingModel, "embedder_model", embedder.ModelID())
		}
		slog.Info("sqlite vector index selected", "path", cfg.SQLitePath, "chunks", n, "dimensions", info.Dimensions)
		return NewSQLite(st, embedder), nil
	case BackendQdrant:
		return NewQdrant(ctx, cfg.Qdrant, embedder)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// Create opens an index for writing, creating the SQLite file or the
// Qdrant collection as needed.
func Create(ctx context.Context, cfg Config, embedder llm.Embedder) (Index, error) {
	switch cfg.Backend {
	case BackendSQLite:
		st, err := store.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewSQLite(st, embedder), nil
	case BackendQdrant:
		return NewQdrant(ctx, cfg.Qdrant, embedder)
	default:
		return nil, fmt.Errorf("backend %q cannot be written to", cfg.Backend)
	}
}
