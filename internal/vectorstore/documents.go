package vectorstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// documentStore persists each chunk document's content and scalar fields
// (relative_path, start_line, end_line, file_extension, metadata per spec
// §3) alongside the catalog, so Query can enumerate documents by scalar
// filter without needing the dense/sparse indexes loaded. Embeddings
// themselves live only in the dense index — re-deriving them on restore is
// the Pipeline's job (C7), not this adapter's.
type documentStore struct {
	db *sql.DB
}

func newDocumentStore(db *sql.DB) (*documentStore, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		fields TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &documentStore{db: db}, nil
}

func (s *documentStore) upsert(collection string, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO documents (collection, id, content, fields) VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET content = excluded.content, fields = excluded.fields`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		fieldsJSON, err := json.Marshal(d.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields for %s: %w", d.ID, err)
		}
		if _, err := stmt.Exec(collection, d.ID, d.Content, string(fieldsJSON)); err != nil {
			return fmt.Errorf("upsert document %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

func (s *documentStore) get(collection, id string) (Doc, bool, error) {
	row := s.db.QueryRow(`SELECT content, fields FROM documents WHERE collection = ? AND id = ?`, collection, id)
	var content, fieldsJSON string
	if err := row.Scan(&content, &fieldsJSON); err != nil {
		if err == sql.ErrNoRows {
			return Doc{}, false, nil
		}
		return Doc{}, false, err
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return Doc{}, false, fmt.Errorf("unmarshal fields for %s: %w", id, err)
	}
	return Doc{ID: id, Content: content, Fields: fields}, true, nil
}

// list returns up to limit documents in collection matching filterExpr
// (empty matches everything). filterExpr is a minimal scalar-field
// language sufficient for spec §4.6's stated use (enumerating documents by
// relative_path): "field = value", "field != value", "field ^= value"
// (prefix match) — the adapter's own detail, not a general query language.
func (s *documentStore) list(collection, filterExpr string, limit int) ([]Doc, error) {
	field, op, value, hasFilter := parseFilterExpr(filterExpr)

	rows, err := s.db.Query(`SELECT id, content, fields FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var docs []Doc
	for rows.Next() {
		if limit > 0 && len(docs) >= limit {
			break
		}
		var id, content, fieldsJSON string
		if err := rows.Scan(&id, &content, &fieldsJSON); err != nil {
			return nil, err
		}
		var fields map[string]string
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields for %s: %w", id, err)
		}
		doc := Doc{ID: id, Content: content, Fields: fields}
		if hasFilter && !evalFilter(doc, field, op, value) {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *documentStore) delete(collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`DELETE FROM documents WHERE collection = ? AND id = ?`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		if _, err := stmt.Exec(collection, id); err != nil {
			return fmt.Errorf("delete document %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *documentStore) deleteCollection(collection string) error {
	_, err := s.db.Exec(`DELETE FROM documents WHERE collection = ?`, collection)
	return err
}

// parseFilterExpr parses "field op value" where op is one of =, !=, ^=.
// An unparseable or empty expr reports hasFilter=false (matches everything).
func parseFilterExpr(expr string) (field, op, value string, hasFilter bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", "", "", false
	}
	for _, candidate := range []string{"!=", "^=", "="} {
		if idx := strings.Index(expr, candidate); idx > 0 {
			field = strings.TrimSpace(expr[:idx])
			value = strings.Trim(strings.TrimSpace(expr[idx+len(candidate):]), `"'`)
			return field, candidate, value, true
		}
	}
	return "", "", "", false
}

func evalFilter(doc Doc, field, op, value string) bool {
	actual, exists := doc.Fields[field]
	if !exists {
		return false
	}
	switch op {
	case "=":
		return actual == value
	case "!=":
		return actual != value
	case "^=":
		return strings.HasPrefix(actual, value)
	default:
		return true
	}
}
