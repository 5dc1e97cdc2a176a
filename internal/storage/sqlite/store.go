package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"taskboard/internal/storage"
)

// Store keeps documents of every collection in a single SQLite table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
            collection TEXT NOT NULL,
            key TEXT NOT NULL,
            fields TEXT NOT NULL DEFAULT '{}',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (collection, key)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Get fetches a single document.
func (s *Store) Get(ctx context.Context, collection, key string) (storage.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT fields FROM documents WHERE collection = ? AND key = ?`, collection, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, key, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Document{}, storage.Unavailable("get document", err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return storage.Document{}, err
	}
	return storage.Document{Key: key, Fields: fields}, nil
}

// Put upserts a document.
func (s *Store) Put(ctx context.Context, collection, key string, fields map[string]any, merge bool) error {
	err := put(ctx, s.db, storage.Op{Collection: collection, Key: key, Fields: fields, Merge: merge})
	return storage.Unavailable("put document", err)
}

// Create inserts a document only when the key is free.
func (s *Store) Create(ctx context.Context, collection, key string, fields map[string]any) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO documents(collection, key, fields) VALUES(?, ?, json(?))
        ON CONFLICT(collection, key) DO NOTHING`, collection, key, raw)
	if err != nil {
		return storage.Unavailable("create document", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable("create document", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s/%s: %w", collection, key, storage.ErrExists)
	}
	return nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET fields = json_patch(fields, json(?)), updated_at = CURRENT_TIMESTAMP
        WHERE collection = ? AND key = ?`, raw, collection, key)
	if err != nil {
		return storage.Unavailable("update document", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable("update document", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s/%s: %w", collection, key, storage.ErrNotFound)
	}
	return nil
}

// Delete removes a document if present.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND key = ?`, collection, key); err != nil {
		return storage.Unavailable("delete document", err)
	}
	return nil
}

// ListAll streams the documents of a collection in insertion order.
func (s *Store) ListAll(ctx context.Context, collection string) (storage.Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, fields FROM documents WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, storage.Unavailable("list documents", err)
	}
	return &cursor{rows: rows}, nil
}

// Batch applies ops inside one transaction.
func (s *Store) Batch(ctx context.Context, ops []storage.Op) error {
	if len(ops) > storage.MaxBatchOps {
		return fmt.Errorf("%d ops: %w", len(ops), storage.ErrBatchTooLarge)
	}
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable("begin batch", err)
	}
	for _, op := range ops {
		if err := put(ctx, tx, op); err != nil {
			_ = tx.Rollback()
			return storage.Unavailable("batch write", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storage.Unavailable("commit batch", err)
	}
	s.logger.Debug("batch committed", slog.Int("ops", len(ops)))
	return nil
}

// put performs the upsert described by op. Defaults only fill fields that
// the stored document does not have yet.
func put(ctx context.Context, db execer, op storage.Op) error {
	fields, err := encodeFields(op.Fields)
	if err != nil {
		return err
	}
	defaults, err := encodeFields(op.Defaults)
	if err != nil {
		return err
	}

	query := `INSERT INTO documents(collection, key, fields) VALUES(?1, ?2, json_patch(json(?4), json(?3)))
        ON CONFLICT(collection, key) DO UPDATE SET fields = json_patch(json(?4), json(?3)), updated_at = CURRENT_TIMESTAMP`
	if op.Merge {
		query = `INSERT INTO documents(collection, key, fields) VALUES(?1, ?2, json_patch(json(?4), json(?3)))
        ON CONFLICT(collection, key) DO UPDATE SET fields = json_patch(json_patch(json(?4), documents.fields), json(?3)), updated_at = CURRENT_TIMESTAMP`
	}
	_, err = db.ExecContext(ctx, query, op.Collection, op.Key, fields, defaults)
	return err
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(raw), nil
}

func decodeFields(raw string) (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}

type cursor struct {
	rows *sql.Rows
	doc  storage.Document
	err  error
}

func (c *cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var key, raw string
	if err := c.rows.Scan(&key, &raw); err != nil {
		c.err = storage.Unavailable("scan document", err)
		return false
	}
	fields, err := decodeFields(raw)
	if err != nil {
		c.err = err
		return false
	}
	c.doc = storage.Document{Key: key, Fields: fields}
	return true
}

func (c *cursor) Document() storage.Document { return c.doc }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return storage.Unavailable("list documents", c.rows.Err())
}

func (c *cursor) Close() error { return c.rows.Close() }
