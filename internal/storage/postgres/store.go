package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskboard/internal/storage"
)

// Store is a PostgreSQL-backed document store. Every collection shares one
// JSONB table.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects to dsn and makes sure the documents table exists.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureTable creates the documents table if it doesn't exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			fields     JSONB NOT NULL DEFAULT '{}',
			seq        BIGSERIAL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (collection, key)
		)`)
	if err != nil {
		return fmt.Errorf("ensure documents table: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Get retrieves a single document.
func (s *Store) Get(ctx context.Context, collection, key string) (storage.Document, error) {
	var fields map[string]any
	err := s.pool.QueryRow(ctx, `SELECT fields FROM documents WHERE collection = $1 AND key = $2`, collection, key).Scan(&fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Document{}, fmt.Errorf("%s/%s: %w", collection, key, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Document{}, storage.Unavailable("get document", err)
	}
	return storage.Document{Key: key, Fields: fields}, nil
}

// Put upserts a document.
func (s *Store) Put(ctx context.Context, collection, key string, fields map[string]any, merge bool) error {
	query, args, err := putQuery(storage.Op{Collection: collection, Key: key, Fields: fields, Merge: merge})
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return storage.Unavailable("put document", err)
	}
	return nil
}

// Create inserts a document only when the key is free.
func (s *Store) Create(ctx context.Context, collection, key string, fields map[string]any) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO documents (collection, key, fields) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, key) DO NOTHING`, collection, key, raw)
	if err != nil {
		return storage.Unavailable("create document", err)
	}
	if tag.RowsAffected() == 0 {
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
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET fields = fields || $1::jsonb, updated_at = NOW()
		WHERE collection = $2 AND key = $3`, raw, collection, key)
	if err != nil {
		return storage.Unavailable("update document", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, key, storage.ErrNotFound)
	}
	return nil
}

// Delete removes a document if present.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND key = $2`, collection, key); err != nil {
		return storage.Unavailable("delete document", err)
	}
	return nil
}

// ListAll streams a collection in insertion order.
func (s *Store) ListAll(ctx context.Context, collection string) (storage.Cursor, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, fields FROM documents WHERE collection = $1 ORDER BY seq`, collection)
	if err != nil {
		return nil, storage.Unavailable("list documents", err)
	}
	return &cursor{rows: rows}, nil
}

// Batch sends all ops in one round trip inside a transaction.
func (s *Store) Batch(ctx context.Context, ops []storage.Op) error {
	if len(ops) > storage.MaxBatchOps {
		return fmt.Errorf("%d ops: %w", len(ops), storage.ErrBatchTooLarge)
	}
	if len(ops) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, op := range ops {
		query, args, err := putQuery(op)
		if err != nil {
			return err
		}
		batch.Queue(query, args...)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return storage.Unavailable("batch write", err)
	}
	s.logger.Debug("batch committed", slog.Int("ops", len(ops)))
	return nil
}

func putQuery(op storage.Op) (string, []any, error) {
	fields, err := encodeFields(op.Fields)
	if err != nil {
		return "", nil, err
	}
	defaults, err := encodeFields(op.Defaults)
	if err != nil {
		return "", nil, err
	}

	update := `$4::jsonb || $3::jsonb`
	if op.Merge {
		update = `$4::jsonb || documents.fields || $3::jsonb`
	}
	query := fmt.Sprintf(`
		INSERT INTO documents (collection, key, fields) VALUES ($1, $2, $4::jsonb || $3::jsonb)
		ON CONFLICT (collection, key) DO UPDATE SET fields = %s, updated_at = NOW()`, update)
	return query, []any{op.Collection, op.Key, fields, defaults}, nil
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

type cursor struct {
	rows pgx.Rows
	doc  storage.Document
	err  error
}

func (c *cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var key string
	var fields map[string]any
	if err := c.rows.Scan(&key, &fields); err != nil {
		c.err = storage.Unavailable("scan document", err)
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

func (c *cursor) Close() error {
	c.rows.Close()
	return nil
}
