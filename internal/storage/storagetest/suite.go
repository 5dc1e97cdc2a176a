// Package storagetest holds the behavior every storage.Store backend must
// share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"taskboard/internal/storage"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"GetMissing", testGetMissing},
		{"PutReplaceAndMerge", testPutReplaceAndMerge},
		{"CreateConflict", testCreateConflict},
		{"UpdateRequiresDocument", testUpdateRequiresDocument},
		{"DeleteIsIdempotent", testDeleteIsIdempotent},
		{"ListAllIsOneShot", testListAllIsOneShot},
		{"BatchAppliesInOrder", testBatchAppliesInOrder},
		{"BatchDefaultsKeepExisting", testBatchDefaultsKeepExisting},
		{"BatchRejectsOversized", testBatchRejectsOversized},
		{"WriteBatchesSplits", testWriteBatchesSplits},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testGetMissing(t *testing.T, s storage.Store) {
	_, err := s.Get(context.Background(), storage.Tasks, "404")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if errors.Is(err, storage.ErrUnavailable) {
		t.Fatal("not found must be distinguishable from unavailable")
	}
}

func testPutReplaceAndMerge(t *testing.T, s storage.Store) {
	mustPut(t, s, storage.Categories, "Work", map[string]any{"color": "#111111", "created_at": "2024-01-01T00:00:00Z"}, false)

	mustPut(t, s, storage.Categories, "Work", map[string]any{"color": "#222222"}, true)
	doc := mustGet(t, s, storage.Categories, "Work")
	if storage.String(doc.Fields, "color") != "#222222" || storage.String(doc.Fields, "created_at") == "" {
		t.Fatalf("merge lost fields: %v", doc.Fields)
	}

	mustPut(t, s, storage.Categories, "Work", map[string]any{"color": "#333333"}, false)
	doc = mustGet(t, s, storage.Categories, "Work")
	if _, ok := doc.Fields["created_at"]; ok {
		t.Fatalf("replace kept unspecified field: %v", doc.Fields)
	}
	if doc.Key != "Work" {
		t.Errorf("Key = %q, want Work", doc.Key)
	}
}

func testCreateConflict(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.Create(ctx, storage.Tasks, "1", map[string]any{"title": "first"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := s.Create(ctx, storage.Tasks, "1", map[string]any{"title": "second"})
	if !errors.Is(err, storage.ErrExists) {
		t.Fatalf("second Create() error = %v, want ErrExists", err)
	}
	if got := storage.String(mustGet(t, s, storage.Tasks, "1").Fields, "title"); got != "first" {
		t.Errorf("title = %q, conflicting create overwrote the document", got)
	}
}

func testUpdateRequiresDocument(t *testing.T, s storage.Store) {
	ctx := context.Background()
	err := s.Update(ctx, storage.Tasks, "9", map[string]any{"title": "x"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Update() on missing doc error = %v, want ErrNotFound", err)
	}

	mustPut(t, s, storage.Tasks, "9", map[string]any{"title": "old", "status": "Open"}, false)
	if err := s.Update(ctx, storage.Tasks, "9", map[string]any{"title": "new"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	doc := mustGet(t, s, storage.Tasks, "9")
	if storage.String(doc.Fields, "title") != "new" || storage.String(doc.Fields, "status") != "Open" {
		t.Errorf("unexpected fields after update: %v", doc.Fields)
	}
}

func testDeleteIsIdempotent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustPut(t, s, storage.Tasks, "5", map[string]any{"title": "x"}, false)
	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, storage.Tasks, "5"); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
	}
	if _, err := s.Get(ctx, storage.Tasks, "5"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get() after delete error = %v", err)
	}
}

func testListAllIsOneShot(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		mustPut(t, s, storage.Tasks, fmt.Sprint(i), map[string]any{"title": fmt.Sprint("t", i)}, false)
	}
	mustPut(t, s, storage.Categories, "Other", map[string]any{"color": "#000000"}, false)

	cur, err := s.ListAll(ctx, storage.Tasks)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	docs, err := storage.Collect(cur)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("ListAll() returned %d docs, want 3", len(docs))
	}
	if cur.Next() {
		t.Error("drained cursor must not restart")
	}

	empty, err := storage.IsEmpty(ctx, s, storage.Meta)
	if err != nil || !empty {
		t.Errorf("IsEmpty(meta) = %v, %v", empty, err)
	}
}

func testBatchAppliesInOrder(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ops := []storage.Op{
		{Collection: storage.Categories, Key: "A", Fields: map[string]any{"color": "#aaaaaa"}, Merge: true},
		{Collection: storage.Tasks, Key: "1", Fields: map[string]any{"title": "one", "category": "A"}, Merge: true},
		{Collection: storage.Tasks, Key: "1", Fields: map[string]any{"title": "one again"}, Merge: true},
		{Collection: storage.Categories, Key: "B", Fields: map[string]any{"color": "#bbbbbb"}, Merge: true},
	}
	if err := s.Batch(ctx, ops); err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	doc := mustGet(t, s, storage.Tasks, "1")
	if storage.String(doc.Fields, "title") != "one again" || storage.String(doc.Fields, "category") != "A" {
		t.Errorf("unexpected task after batch: %v", doc.Fields)
	}
	mustGet(t, s, storage.Categories, "B")
}

func testBatchDefaultsKeepExisting(t *testing.T, s storage.Store) {
	ctx := context.Background()
	op := func(color, created string) storage.Op {
		return storage.Op{
			Collection: storage.Categories,
			Key:        "Work",
			Fields:     map[string]any{"color": color},
			Defaults:   map[string]any{"created_at": created},
			Merge:      true,
		}
	}
	if err := s.Batch(ctx, []storage.Op{op("#111111", "2024-01-01T00:00:00Z")}); err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if err := s.Batch(ctx, []storage.Op{op("#222222", "2025-01-01T00:00:00Z")}); err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	doc := mustGet(t, s, storage.Categories, "Work")
	if got := storage.String(doc.Fields, "created_at"); got != "2024-01-01T00:00:00Z" {
		t.Errorf("created_at = %q, defaults must not overwrite", got)
	}
	if got := storage.String(doc.Fields, "color"); got != "#222222" {
		t.Errorf("color = %q, want #222222", got)
	}
}

func testBatchRejectsOversized(t *testing.T, s storage.Store) {
	ops := make([]storage.Op, storage.MaxBatchOps+1)
	for i := range ops {
		ops[i] = storage.Op{Collection: storage.Tasks, Key: fmt.Sprint(i), Fields: map[string]any{"n": i}}
	}
	err := s.Batch(context.Background(), ops)
	if !errors.Is(err, storage.ErrBatchTooLarge) {
		t.Fatalf("Batch() error = %v, want ErrBatchTooLarge", err)
	}
	empty, err := storage.IsEmpty(context.Background(), s, storage.Tasks)
	if err != nil || !empty {
		t.Errorf("oversized batch must not write anything: empty=%v err=%v", empty, err)
	}
}

func testWriteBatchesSplits(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const n = storage.MaxBatchOps*2 + 17
	ops := make([]storage.Op, n)
	for i := range ops {
		ops[i] = storage.Op{Collection: storage.Tasks, Key: fmt.Sprint(i + 1), Fields: map[string]any{"title": fmt.Sprint("task ", i+1)}, Merge: true}
	}

	var sizes []int
	committed, err := storage.WriteBatches(ctx, s, ops, func(size int) { sizes = append(sizes, size) })
	if err != nil {
		t.Fatalf("WriteBatches() error = %v", err)
	}
	if committed != n {
		t.Errorf("committed = %d, want %d", committed, n)
	}
	if len(sizes) != 3 || sizes[0] != storage.MaxBatchOps || sizes[2] != 17 {
		t.Errorf("batch sizes = %v", sizes)
	}

	cur, err := s.ListAll(ctx, storage.Tasks)
	if err != nil {
		t.Fatal(err)
	}
	docs, err := storage.Collect(cur)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != n {
		t.Errorf("stored %d tasks, want %d", len(docs), n)
	}
}

func mustPut(t *testing.T, s storage.Store, collection, key string, fields map[string]any, merge bool) {
	t.Helper()
	if err := s.Put(context.Background(), collection, key, fields, merge); err != nil {
		t.Fatalf("Put(%s/%s) error = %v", collection, key, err)
	}
}

func mustGet(t *testing.T, s storage.Store, collection, key string) storage.Document {
	t.Helper()
	doc, err := s.Get(context.Background(), collection, key)
	if err != nil {
		t.Fatalf("Get(%s/%s) error = %v", collection, key, err)
	}
	return doc
}
