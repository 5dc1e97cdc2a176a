// Package tasks is the entry point the HTTP layer uses to read and change
// categories and tasks.
package tasks

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"taskboard/internal/configstore"
	"taskboard/internal/migration"
	"taskboard/internal/models"
	"taskboard/internal/storage"
)

// PlaceholderCategory is the reserved name of the category returned when no
// data is available anywhere.
const PlaceholderCategory = "_migration_needed"

// UpdateResult reports the outcome of UpdateTask.
type UpdateResult struct {
	Task models.Task
	// Ignored names request fields that were not applied.
	Ignored []string
}

// backend is one concrete representation of the task data.
type backend interface {
	name() string
	listCategories(ctx context.Context) (map[string]models.CategoryTasks, error)
	createTask(ctx context.Context, in models.NewTask) (models.Task, error)
	updateTask(ctx context.Context, id int64, patch models.TaskPatch) (UpdateResult, error)
	deleteTask(ctx context.Context, id int64) error
}

// Repository serves categories and tasks. Writes go to the document store
// when one is configured, otherwise to the flat file. Reads fall back from
// the document store to the flat file and finally to a placeholder.
type Repository struct {
	docs     *documentBackend
	file     *fileBackend
	primary  backend
	migrator *migration.Engine
	logger   *slog.Logger
}

// New builds a Repository. docs may be nil to run on the flat file only.
func New(docs storage.Store, file *configstore.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{
		file:   &fileBackend{store: file, now: time.Now, logger: logger},
		logger: logger,
	}
	r.primary = r.file
	if docs != nil {
		r.docs = &documentBackend{store: docs, now: time.Now, logger: logger}
		r.migrator = migration.New(docs, logger)
		r.primary = r.docs
	}
	return r
}

// Backend names the backend that receives writes.
func (r *Repository) Backend() string {
	return r.primary.name()
}

// ListCategories returns every category with its tasks sorted by id. It
// never fails: when neither source has data a placeholder is returned.
func (r *Repository) ListCategories(ctx context.Context) map[string]models.CategoryTasks {
	if r.docs != nil {
		cats, err := r.docs.listCategories(ctx)
		switch {
		case err != nil:
			r.logger.Warn("document store unavailable, serving flat file",
				slog.String("source", r.docs.name()),
				slog.String("error", err.Error()))
		case len(cats) == 0:
			r.logger.Info("document store is empty, serving flat file")
		default:
			return cats
		}
	}

	cats, err := r.file.listCategories(ctx)
	if err == nil && len(cats) > 0 {
		return cats
	}
	r.logger.Warn("no task data available, serving placeholder", slog.String("data_file", r.file.store.Path()))
	return Placeholder()
}

// ListTasks returns all tasks sorted by id, each with its category color.
func (r *Repository) ListTasks(ctx context.Context) []models.Task {
	cats := r.ListCategories(ctx)
	all := []models.Task{}
	for _, group := range cats {
		for _, t := range group.Tasks {
			t.CategoryColor = group.Color
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// CreateTask validates the input and stores a new task with the next id.
func (r *Repository) CreateTask(ctx context.Context, in models.NewTask) (models.Task, error) {
	if missing := in.Missing(); len(missing) > 0 {
		return models.Task{}, &ValidationError{Fields: missing}
	}
	return r.primary.createTask(ctx, in)
}

// UpdateTask applies the fields present in patch. An unknown category is
// not applied and is reported in UpdateResult.Ignored.
func (r *Repository) UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (UpdateResult, error) {
	res, err := r.primary.updateTask(ctx, id, patch)
	if err != nil {
		return UpdateResult{}, err
	}
	if len(res.Ignored) > 0 {
		r.logger.Warn("update fields ignored", slog.Int64("task_id", id), slog.Any("fields", res.Ignored))
	}
	return res, nil
}

// DeleteTask removes a task permanently.
func (r *Repository) DeleteTask(ctx context.Context, id int64) error {
	return r.primary.deleteTask(ctx, id)
}

// Migrate copies the flat file into the document store once.
func (r *Repository) Migrate(ctx context.Context) (migration.Result, error) {
	if r.migrator == nil {
		return migration.Result{}, ErrNoDocumentStore
	}
	return r.migrator.Migrate(ctx, r.file.store.Load())
}

// Placeholder returns the single synthetic category shown when there is no
// data.
func Placeholder() map[string]models.CategoryTasks {
	return map[string]models.CategoryTasks{
		PlaceholderCategory: {Color: models.DefaultColor, Tasks: []models.Task{}},
	}
}

// IsPlaceholder reports whether cats is the placeholder result.
func IsPlaceholder(cats map[string]models.CategoryTasks) bool {
	_, ok := cats[PlaceholderCategory]
	return ok && len(cats) == 1
}

func sortTasks(cats map[string]models.CategoryTasks) {
	for _, group := range cats {
		sort.Slice(group.Tasks, func(i, j int) bool { return group.Tasks[i].ID < group.Tasks[j].ID })
	}
}
