package tasks

import (
	"context"
	"log/slog"
	"sort"

	"taskboard/internal/configstore"
	"taskboard/internal/models"
	"taskboard/internal/storage"
)

// ExportSnapshot reads the document store into the flat-file layout. Unlike
// ListCategories it does not fall back: failures are returned.
func (r *Repository) ExportSnapshot(ctx context.Context) (configstore.Snapshot, error) {
	if r.docs == nil {
		return configstore.Snapshot{}, ErrNoDocumentStore
	}

	cats, err := r.docs.collect(ctx, storage.Categories)
	if err != nil {
		return configstore.Snapshot{}, err
	}
	docs, err := r.docs.collect(ctx, storage.Tasks)
	if err != nil {
		return configstore.Snapshot{}, err
	}

	var snap configstore.Snapshot
	for _, c := range cats {
		snap.Categories = append(snap.Categories, configstore.Category{Name: c.Key, Color: categoryColor(c), Tasks: []configstore.Task{}})
	}
	for _, d := range docs {
		t, ok := decodeTask(d)
		if !ok {
			continue
		}
		idx := snap.Index(t.Category)
		if idx < 0 {
			snap.Categories = append(snap.Categories, configstore.Category{Name: t.Category, Color: models.DefaultColor})
			idx = len(snap.Categories) - 1
		}
		snap.Categories[idx].Tasks = append(snap.Categories[idx].Tasks, toFileTask(t))
	}
	for _, c := range snap.Categories {
		sort.Slice(c.Tasks, func(i, j int) bool { return c.Tasks[i].ID < c.Tasks[j].ID })
	}
	return snap, nil
}

// SyncFile rewrites the flat file from the document store so the read
// fallback stays current. An empty store leaves the file untouched.
func (r *Repository) SyncFile(ctx context.Context) error {
	snap, err := r.ExportSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Empty() {
		r.logger.Info("document store is empty, data file left unchanged")
		return nil
	}
	if err := r.file.save(snap); err != nil {
		return err
	}
	r.logger.Info("data file synchronized",
		slog.String("path", r.file.store.Path()),
		slog.Int("categories", len(snap.Categories)),
		slog.Int("tasks", snap.TaskCount()))
	return nil
}
