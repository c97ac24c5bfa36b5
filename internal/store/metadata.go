package store

import (
	"database/sql"
	"strconv"

	"github.com/pavelanni/mentor/internal/model"
)

// SetMetadata upserts a key-value pair in the index_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO index_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM index_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetIndexInfo stores all IndexInfo fields as metadata rows.
func (s *Store) SetIndexInfo(info model.IndexInfo) error {
	pairs := []struct{ k, v string }{
		{"embedding_model", info.EmbeddingModel},
		{"dimensions", strconv.Itoa(info.Dimensions)},
		{"chunk_size", strconv.Itoa(info.ChunkSize)},
		{"chunk_overlap", strconv.Itoa(info.ChunkOverlap)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetIndexInfo reads IndexInfo from metadata. A fresh store returns the zero value.
func (s *Store) GetIndexInfo() (model.IndexInfo, error) {
	var info model.IndexInfo
	var err error

	if info.EmbeddingModel, err = s.GetMetadata("embedding_model"); err != nil {
		return info, err
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"dimensions", &info.Dimensions},
		{"chunk_size", &info.ChunkSize},
		{"chunk_overlap", &info.ChunkOverlap},
	}
	for _, f := range ints {
		v, err := s.GetMetadata(f.key)
		if err != nil {
			return info, err
		}
		if v == "" {
			continue
		}
		if *f.dst, err = strconv.Atoi(v); err != nil {
			return info, err
		}
	}
	return info, nil
}
