package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/agentforge/internal/util"
)

// SQLiteStore is a Store persisted in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) a SQLite database at dsn and runs the schema
// migration. Parent directories of file paths are created.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open document db: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and serializes
	// read-modify-write updates.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate document db: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			path        TEXT PRIMARY KEY,
			parent      TEXT NOT NULL,
			id          TEXT NOT NULL,
			data        TEXT NOT NULL,
			event_index INTEGER,
			updated_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent, event_index, id);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, path string) (map[string]any, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}

	return getDoc(ctx, s.db, path)
}

func (s *SQLiteStore) Set(ctx context.Context, path string, data map[string]any) error {
	parent, id, err := splitDocPath(path)
	if err != nil {
		return err
	}

	now := s.now()
	doc := map[string]any{}
	applyFields(doc, data, now)

	return putDoc(ctx, s.db, path, parent, id, doc, nil, now)
}

func (s *SQLiteStore) Update(ctx context.Context, path string, fields map[string]any) error {
	parent, id, err := splitDocPath(path)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	doc, err := getDoc(ctx, tx, path)
	if err != nil {
		return err
	}

	now := s.now()
	applyFields(doc, fields, now)

	if err := putDoc(ctx, tx, path, parent, id, doc, nil, now); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, data FROM documents WHERE parent = ? ORDER BY id", collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	return scanDocs(rows)
}

func (s *SQLiteStore) AddEvents(ctx context.Context, path string, events []map[string]any) error {
	if _, _, err := splitDocPath(path); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	parent := eventsCollection(path)

	for i, ev := range events {
		idx := batchIndex(ev, i)

		doc := maps.Clone(ev)
		doc["eventIndex"] = idx
		doc["timestamp"] = ServerTimestamp

		resolved := map[string]any{}
		applyFields(resolved, doc, now)

		id := util.NewULID()
		if err := putDoc(ctx, tx, parent+"/"+id, parent, id, resolved, &idx, now); err != nil {
			return fmt.Errorf("write event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event batch: %w", err)
	}

	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, path string) ([]map[string]any, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, data FROM documents WHERE parent = ? ORDER BY event_index, id", eventsCollection(path))
	if err != nil {
		return nil, fmt.Errorf("list events of %s: %w", path, err)
	}
	defer rows.Close()

	docs, err := scanDocs(rows)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Data)
	}

	return out, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getDoc(ctx context.Context, q querier, path string) (map[string]any, error) {
	var raw string

	err := q.QueryRowContext(ctx, "SELECT data FROM documents WHERE path = ?", path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(path)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	return doc, nil
}

func putDoc(ctx context.Context, q querier, path, parent, id string, doc map[string]any, eventIndex *int, now time.Time) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	var idx any
	if eventIndex != nil {
		idx = *eventIndex
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (path, parent, id, data, event_index, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		path, parent, id, string(b), idx, now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}

	return nil
}

func scanDocs(rows *sql.Rows) ([]Document, error) {
	var out []Document

	for rows.Next() {
		var (
			id  string
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}

		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		out = append(out, Document{ID: id, Data: data})
	}

	return out, rows.Err()
}
