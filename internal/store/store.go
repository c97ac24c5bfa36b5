package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/model"

	_ "modernc.org/sqlite"
)

// Store persists the ingested corpus: documents, their chunks with
// embeddings, and index metadata.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps :memory: databases shared across calls.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL UNIQUE,
		sha256 TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		UNIQUE(document_id, seq),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS index_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// DocumentHash returns the recorded SHA-256 for source, or "" when the
// source has never been imported.
func (s *Store) DocumentHash(source string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT sha256 FROM documents WHERE source = ?`, source).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// ReplaceDocument records doc and swaps its chunks for the given ones in a
// single transaction. Seq is assigned from slice order.
func (s *Store) ReplaceDocument(doc model.Document, chunks []model.Chunk) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if doc.ImportedAt.IsZero() {
		doc.ImportedAt = time.Now().UTC()
	}

	var id int64
	err = tx.QueryRow(
		`INSERT INTO documents (source, sha256, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET sha256 = excluded.sha256, imported_at = excluded.imported_at
		 RETURNING id`,
		doc.Source, doc.SHA256, doc.ImportedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert document: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return 0, fmt.Errorf("delete old chunks: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO chunks (document_id, seq, text, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.Exec(id, i, c.Text, llm.EncodeVector(c.Embedding)); err != nil {
			return 0, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// DeleteDocument removes source and its chunks. Missing sources are ignored.
func (s *Store) DeleteDocument(source string) error {
	_, err := s.db.Exec(`DELETE FROM documents WHERE source = ?`, source)
	return err
}

func (s *Store) ListDocuments() ([]model.Document, error) {
	rows, err := s.db.Query(
		`SELECT d.id, d.source, d.sha256, d.imported_at, COUNT(c.id)
		 FROM documents d LEFT JOIN chunks c ON c.document_id = d.id
		 GROUP BY d.id ORDER BY d.source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.Source, &d.SHA256, &d.ImportedAt, &d.Chunks); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ListChunks returns every chunk with its decoded embedding, ordered by
// document and position.
func (s *Store) ListChunks() ([]model.Chunk, error) {
	rows, err := s.db.Query(`SELECT id, document_id, seq, text, embedding FROM chunks ORDER BY document_id, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Seq, &c.Text, &blob); err != nil {
			return nil, err
		}
		c.Embedding, err = llm.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *Store) ChunkCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}
