package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout bounds every call on s by d. A call that runs out of time
// fails with ErrUnavailable. Cursors keep their deadline until closed.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timeoutStore{Store: s, timeout: d}
}

type timeoutStore struct {
	Store
	timeout time.Duration
}

func (t *timeoutStore) Get(ctx context.Context, collection, key string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	doc, err := t.Store.Get(ctx, collection, key)
	return doc, deadlineErr(ctx, "get document", err)
}

func (t *timeoutStore) Put(ctx context.Context, collection, key string, fields map[string]any, merge bool) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return deadlineErr(ctx, "put document", t.Store.Put(ctx, collection, key, fields, merge))
}

func (t *timeoutStore) Create(ctx context.Context, collection, key string, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return deadlineErr(ctx, "create document", t.Store.Create(ctx, collection, key, fields))
}

func (t *timeoutStore) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return deadlineErr(ctx, "update document", t.Store.Update(ctx, collection, key, fields))
}

func (t *timeoutStore) Delete(ctx context.Context, collection, key string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return deadlineErr(ctx, "delete document", t.Store.Delete(ctx, collection, key))
}

func (t *timeoutStore) ListAll(ctx context.Context, collection string) (Cursor, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	cur, err := t.Store.ListAll(ctx, collection)
	if err != nil {
		err = deadlineErr(ctx, "list documents", err)
		cancel()
		return nil, err
	}
	return &timeoutCursor{Cursor: cur, ctx: ctx, cancel: cancel}, nil
}

func (t *timeoutStore) Batch(ctx context.Context, ops []Op) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return deadlineErr(ctx, "batch write", t.Store.Batch(ctx, ops))
}

type timeoutCursor struct {
	Cursor
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *timeoutCursor) Err() error {
	return deadlineErr(c.ctx, "list documents", c.Cursor.Err())
}

func (c *timeoutCursor) Close() error {
	defer c.cancel()
	return c.Cursor.Close()
}

func deadlineErr(ctx context.Context, op string, err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return err
}
