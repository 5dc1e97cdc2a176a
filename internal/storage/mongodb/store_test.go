package mongodb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"taskboard/internal/storage"
	"taskboard/internal/storage/storagetest"
)

func TestStoreConformance(t *testing.T) {
	uri := os.Getenv("TASKBOARD_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TASKBOARD_TEST_MONGO_URI not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		s, err := Open(ctx, uri, fmt.Sprintf("taskboard_test_%d", time.Now().UnixNano()), nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		return droppingStore{s}
	})
}

// droppingStore removes the per-test database before disconnecting.
type droppingStore struct {
	*Store
}

func (d droppingStore) Close() error {
	_ = d.Drop(context.Background())
	return d.Store.Close()
}
