package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/storage"
)

// maxIDAttempts bounds how often CreateTask retries after losing an id race.
const maxIDAttempts = 5

// documentBackend keeps categories and tasks in separate collections. Tasks
// reference their category by name, so moving a task is a field update.
type documentBackend struct {
	store  storage.Store
	now    func() time.Time
	logger *slog.Logger
}

func (b *documentBackend) name() string { return "documents" }

func (b *documentBackend) listCategories(ctx context.Context) (map[string]models.CategoryTasks, error) {
	cats, err := b.collect(ctx, storage.Categories)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.CategoryTasks, len(cats))
	if len(cats) == 0 {
		return out, nil
	}
	for _, c := range cats {
		out[c.Key] = models.CategoryTasks{Color: categoryColor(c), Tasks: []models.Task{}}
	}

	docs, err := b.collect(ctx, storage.Tasks)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		t, ok := decodeTask(d)
		if !ok {
			b.logger.Warn("skipping task with invalid key", slog.String("key", d.Key))
			continue
		}
		group, ok := out[t.Category]
		if !ok {
			group = models.CategoryTasks{Color: models.DefaultColor, Tasks: []models.Task{}}
		}
		group.Tasks = append(group.Tasks, t)
		out[t.Category] = group
	}
	sortTasks(out)
	return out, nil
}

func (b *documentBackend) createTask(ctx context.Context, in models.NewTask) (models.Task, error) {
	category := *in.Category
	if err := b.categoryExists(ctx, category); err != nil {
		return models.Task{}, err
	}

	now := b.now().UTC()
	task := models.Task{
		Title:       *in.Title,
		Description: *in.Description,
		Priority:    models.StringOr(in.Priority, models.DefaultPriority),
		Status:      models.StringOr(in.Status, models.DefaultStatus),
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The id is max+1 of what is stored right now. The conditional create
	// makes a concurrent creator with the same id retry instead of
	// overwriting.
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		maxID, err := b.maxID(ctx)
		if err != nil {
			return models.Task{}, err
		}
		task.ID = maxID + 1

		err = b.store.Create(ctx, storage.Tasks, taskKey(task.ID), encodeTask(task))
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, storage.ErrExists) {
			return models.Task{}, storeError("create task", err)
		}
		b.logger.Info("task id taken, retrying", slog.Int64("id", task.ID), slog.Int("attempt", attempt))
	}
	return models.Task{}, ErrIDExhausted
}

func (b *documentBackend) updateTask(ctx context.Context, id int64, patch models.TaskPatch) (UpdateResult, error) {
	doc, err := b.store.Get(ctx, storage.Tasks, taskKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return UpdateResult{}, ErrNotFound
	}
	if err != nil {
		return UpdateResult{}, storeError("get task", err)
	}
	task, _ := decodeTask(doc)

	var res UpdateResult
	patch.Apply(&task)
	if patch.Category != nil && *patch.Category != task.Category {
		switch err := b.categoryExists(ctx, *patch.Category); {
		case errors.Is(err, ErrCategoryNotFound):
			res.Ignored = append(res.Ignored, "category")
		case err != nil:
			return UpdateResult{}, err
		default:
			task.Category = *patch.Category
		}
	}
	task.UpdatedAt = b.now().UTC()

	changes := map[string]any{"updated_at": storage.Timestamp(task.UpdatedAt)}
	if patch.Title != nil {
		changes["title"] = task.Title
	}
	if patch.Description != nil {
		changes["description"] = task.Description
	}
	if patch.Priority != nil {
		changes["priority"] = task.Priority
	}
	if patch.Status != nil {
		changes["status"] = task.Status
	}
	if patch.Category != nil && len(res.Ignored) == 0 {
		changes["category"] = task.Category
	}

	err = b.store.Update(ctx, storage.Tasks, taskKey(id), changes)
	if errors.Is(err, storage.ErrNotFound) {
		return UpdateResult{}, ErrNotFound
	}
	if err != nil {
		return UpdateResult{}, storeError("update task", err)
	}
	res.Task = task
	return res, nil
}

func (b *documentBackend) deleteTask(ctx context.Context, id int64) error {
	_, err := b.store.Get(ctx, storage.Tasks, taskKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storeError("get task", err)
	}
	if err := b.store.Delete(ctx, storage.Tasks, taskKey(id)); err != nil {
		return storeError("delete task", err)
	}
	return nil
}

func (b *documentBackend) categoryExists(ctx context.Context, name string) error {
	_, err := b.store.Get(ctx, storage.Categories, name)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%q: %w", name, ErrCategoryNotFound)
	}
	return storeError("get category", err)
}

func (b *documentBackend) maxID(ctx context.Context) (int64, error) {
	docs, err := b.collect(ctx, storage.Tasks)
	if err != nil {
		return 0, err
	}
	var max int64
	for _, d := range docs {
		if id, err := strconv.ParseInt(d.Key, 10, 64); err == nil && id > max {
			max = id
		}
	}
	return max, nil
}

func (b *documentBackend) collect(ctx context.Context, collection string) ([]storage.Document, error) {
	cur, err := b.store.ListAll(ctx, collection)
	if err != nil {
		return nil, storeError("list "+collection, err)
	}
	docs, err := storage.Collect(cur)
	if err != nil {
		return nil, storeError("list "+collection, err)
	}
	return docs, nil
}

func categoryColor(d storage.Document) string {
	if color := storage.String(d.Fields, "color"); color != "" {
		return color
	}
	return models.DefaultColor
}

func taskKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func encodeTask(t models.Task) map[string]any {
	return map[string]any{
		"title":       t.Title,
		"description": t.Description,
		"priority":    t.Priority,
		"status":      t.Status,
		"category":    t.Category,
		"created_at":  storage.Timestamp(t.CreatedAt),
		"updated_at":  storage.Timestamp(t.UpdatedAt),
	}
}

func decodeTask(d storage.Document) (models.Task, bool) {
	id, err := strconv.ParseInt(d.Key, 10, 64)
	if err != nil || id <= 0 {
		return models.Task{}, false
	}
	return models.Task{
		ID:          id,
		Title:       storage.String(d.Fields, "title"),
		Description: storage.String(d.Fields, "description"),
		Priority:    storage.String(d.Fields, "priority"),
		Status:      storage.String(d.Fields, "status"),
		Category:    storage.String(d.Fields, "category"),
		CreatedAt:   storage.Time(d.Fields, "created_at"),
		UpdatedAt:   storage.Time(d.Fields, "updated_at"),
	}, true
}
