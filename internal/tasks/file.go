package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taskboard/internal/configstore"
	"taskboard/internal/models"
)

// fileBackend serves the flat JSON file where tasks are nested under their
// category. Every write reloads the file, changes it and saves it whole.
// Two concurrent writers can lose one update; the atomic rename in
// configstore only guarantees the file is never half written.
type fileBackend struct {
	store  *configstore.Store
	now    func() time.Time
	logger *slog.Logger
}

func (b *fileBackend) name() string { return "file" }

func (b *fileBackend) listCategories(context.Context) (map[string]models.CategoryTasks, error) {
	snap := b.store.Load()
	out := make(map[string]models.CategoryTasks, len(snap.Categories))
	for _, c := range snap.Categories {
		color := c.Color
		if color == "" {
			color = models.DefaultColor
		}
		group := models.CategoryTasks{Color: color, Tasks: make([]models.Task, 0, len(c.Tasks))}
		for _, t := range c.Tasks {
			group.Tasks = append(group.Tasks, fromFileTask(c.Name, t))
		}
		out[c.Name] = group
	}
	sortTasks(out)
	return out, nil
}

func (b *fileBackend) createTask(_ context.Context, in models.NewTask) (models.Task, error) {
	snap := b.store.Load()
	idx := snap.Index(*in.Category)
	if idx < 0 {
		return models.Task{}, fmt.Errorf("%q: %w", *in.Category, ErrCategoryNotFound)
	}

	now := b.now().UTC()
	record := configstore.Task{
		ID:          snap.MaxID() + 1,
		Title:       *in.Title,
		Description: *in.Description,
		Priority:    models.StringOr(in.Priority, models.DefaultPriority),
		Status:      models.StringOr(in.Status, models.DefaultStatus),
		CreatedAt:   &now,
		UpdatedAt:   &now,
	}
	snap.Categories[idx].Tasks = append(snap.Categories[idx].Tasks, record)

	if err := b.save(snap); err != nil {
		return models.Task{}, err
	}
	return fromFileTask(*in.Category, record), nil
}

func (b *fileBackend) updateTask(_ context.Context, id int64, patch models.TaskPatch) (UpdateResult, error) {
	snap := b.store.Load()
	ci, ti, ok := snap.Locate(id)
	if !ok {
		return UpdateResult{}, ErrNotFound
	}

	current := snap.Categories[ci].Name
	task := fromFileTask(current, snap.Categories[ci].Tasks[ti])
	patch.Apply(&task)
	task.UpdatedAt = b.now().UTC()

	var res UpdateResult
	record := toFileTask(task)
	snap.Categories[ci].Tasks[ti] = record

	if patch.Category != nil && *patch.Category != current {
		target := snap.Index(*patch.Category)
		if target < 0 {
			res.Ignored = append(res.Ignored, "category")
		} else {
			tasks := snap.Categories[ci].Tasks
			snap.Categories[ci].Tasks = append(tasks[:ti:ti], tasks[ti+1:]...)
			snap.Categories[target].Tasks = append(snap.Categories[target].Tasks, record)
			task.Category = *patch.Category
		}
	}

	if err := b.save(snap); err != nil {
		return UpdateResult{}, err
	}
	res.Task = task
	return res, nil
}

func (b *fileBackend) deleteTask(_ context.Context, id int64) error {
	snap := b.store.Load()
	ci, ti, ok := snap.Locate(id)
	if !ok {
		return ErrNotFound
	}
	tasks := snap.Categories[ci].Tasks
	snap.Categories[ci].Tasks = append(tasks[:ti:ti], tasks[ti+1:]...)
	return b.save(snap)
}

func (b *fileBackend) save(snap configstore.Snapshot) error {
	if err := b.store.Save(snap); err != nil {
		return storeError("save data file", err)
	}
	return nil
}

func fromFileTask(category string, t configstore.Task) models.Task {
	task := models.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      t.Status,
		Category:    category,
	}
	if t.CreatedAt != nil {
		task.CreatedAt = *t.CreatedAt
	}
	if t.UpdatedAt != nil {
		task.UpdatedAt = *t.UpdatedAt
	}
	return task
}

func toFileTask(t models.Task) configstore.Task {
	record := configstore.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      t.Status,
	}
	if !t.CreatedAt.IsZero() {
		created := t.CreatedAt
		record.CreatedAt = &created
	}
	if !t.UpdatedAt.IsZero() {
		updated := t.UpdatedAt
		record.UpdatedAt = &updated
	}
	return record
}
