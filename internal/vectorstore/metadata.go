package vectorstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// collectionMeta is the persisted record for one collection, tracked
// independently of its dense/sparse index files so ListCollections and
// CheckCollectionLimit don't require opening every index.
type collectionMeta struct {
	Name        string
	Dimensions  int
	Hybrid      bool
	Description string
	CreatedAt   time.Time
}

// metadataStore persists the collection registry in SQLite, in WAL mode
// (modernc.org/sqlite, pure Go, no CGO) — used here for the adapter's own
// bookkeeping rather than for BM25 itself, since Bleve already owns that
// concern per collection.
type metadataStore struct {
	db *sql.DB
}

func newMetadataStore(path string) (*metadataStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL,
		hybrid INTEGER NOT NULL,
		description TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create collections table: %w", err)
	}

	return &metadataStore{db: db}, nil
}

func (m *metadataStore) create(meta collectionMeta) error {
	_, err := m.db.Exec(
		`INSERT INTO collections (name, dimensions, hybrid, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		meta.Name, meta.Dimensions, meta.Hybrid, meta.Description, meta.CreatedAt.Unix(),
	)
	return err
}

func (m *metadataStore) get(name string) (*collectionMeta, error) {
	row := m.db.QueryRow(`SELECT name, dimensions, hybrid, description, created_at FROM collections WHERE name = ?`, name)
	var meta collectionMeta
	var hybrid int
	var createdAt int64
	if err := row.Scan(&meta.Name, &meta.Dimensions, &hybrid, &meta.Description, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	meta.Hybrid = hybrid != 0
	meta.CreatedAt = time.Unix(createdAt, 0)
	return &meta, nil
}

func (m *metadataStore) drop(name string) error {
	_, err := m.db.Exec(`DELETE FROM collections WHERE name = ?`, name)
	return err
}

func (m *metadataStore) list() ([]string, error) {
	rows, err := m.db.Query(`SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (m *metadataStore) count() (int, error) {
	var n int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM collections`).Scan(&n)
	return n, err
}

func (m *metadataStore) close() error {
	return m.db.Close()
}
