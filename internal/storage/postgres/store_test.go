package postgres

import (
	"context"
	"os"
	"testing"

	"taskboard/internal/storage"
	"taskboard/internal/storage/storagetest"
)

func TestStoreConformance(t *testing.T) {
	dsn := os.Getenv("TASKBOARD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TASKBOARD_TEST_POSTGRES_DSN not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		s, err := Open(ctx, dsn, nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if _, err := s.pool.Exec(ctx, `TRUNCATE documents`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
