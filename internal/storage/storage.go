// Package storage defines the document store used to persist categories and
// tasks. Backends live in subpackages.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Collections used by the application.
const (
	Categories = "categories"
	Tasks      = "tasks"
	Meta       = "meta"
)

// MaxBatchOps is the largest number of operations sent in one Batch call.
// Remote backends cap a single commit at 500 writes.
const MaxBatchOps = 400

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("document already exists")
	// ErrUnavailable wraps every backend, network and timeout failure.
	ErrUnavailable = errors.New("store unavailable")
	// ErrBatchTooLarge is returned by Batch for more than MaxBatchOps ops.
	ErrBatchTooLarge = errors.New("batch exceeds operation limit")
)

// Unavailable wraps err with ErrUnavailable unless it already is a known
// store error.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrExists) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// Document is a keyed set of fields inside a collection.
type Document struct {
	Key    string
	Fields map[string]any
}

// Op is a single write inside a batch.
type Op struct {
	Collection string
	Key        string
	Fields     map[string]any
	// Defaults are written only for fields absent on the stored document.
	Defaults map[string]any
	// Merge keeps fields not named in Fields; otherwise the document is
	// replaced.
	Merge bool
}

// Cursor iterates a collection once. It cannot be restarted.
type Cursor interface {
	Next() bool
	Document() Document
	Err() error
	Close() error
}

// Store is a document store with per-document operations and bounded
// batched writes. Batches are not atomic with respect to each other.
type Store interface {
	Get(ctx context.Context, collection, key string) (Document, error)
	// Put upserts fields. With merge the stored fields not named are kept.
	Put(ctx context.Context, collection, key string, fields map[string]any, merge bool) error
	// Create inserts a new document and fails with ErrExists if the key is
	// taken.
	Create(ctx context.Context, collection, key string, fields map[string]any) error
	// Update merges fields into an existing document, ErrNotFound otherwise.
	Update(ctx context.Context, collection, key string, fields map[string]any) error
	// Delete removes the document. Deleting an absent key is not an error.
	Delete(ctx context.Context, collection, key string) error
	ListAll(ctx context.Context, collection string) (Cursor, error)
	// Batch applies ops in order in one round trip.
	Batch(ctx context.Context, ops []Op) error
	Close() error
}

// Collect drains the cursor and closes it.
func Collect(cur Cursor) ([]Document, error) {
	defer cur.Close()
	var docs []Document
	for cur.Next() {
		docs = append(docs, cur.Document())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// IsEmpty reports whether the collection has no documents.
func IsEmpty(ctx context.Context, s Store, collection string) (bool, error) {
	cur, err := s.ListAll(ctx, collection)
	if err != nil {
		return false, err
	}
	defer cur.Close()
	if cur.Next() {
		return false, nil
	}
	return true, cur.Err()
}

// WriteBatches splits ops into batches of at most MaxBatchOps and applies
// them in order. It returns how many ops were committed before a failure;
// earlier batches stay applied.
func WriteBatches(ctx context.Context, s Store, ops []Op, onCommit func(size int)) (int, error) {
	committed := 0
	for start := 0; start < len(ops); start += MaxBatchOps {
		end := start + MaxBatchOps
		if end > len(ops) {
			end = len(ops)
		}
		if err := s.Batch(ctx, ops[start:end]); err != nil {
			return committed, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		committed = end
		if onCommit != nil {
			onCommit(end - start)
		}
	}
	return committed, nil
}
