// Package migration copies the flat-file task data into the document store
// exactly once.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/configstore"
	"taskboard/internal/models"
	"taskboard/internal/storage"
)

// ErrNoSourceData is returned when the flat file holds no categories.
var ErrNoSourceData = errors.New("no source data to migrate")

// markerKey names the document in storage.Meta that records migration state.
const markerKey = "migration"

// Migration states.
const (
	NotMigrated = "not_migrated"
	InProgress  = "in_progress"
	Complete    = "complete"
)

// Result summarizes a Migrate call.
type Result struct {
	CategoriesMigrated int    `json:"categoriesMigrated"`
	TasksMigrated      int    `json:"tasksMigrated"`
	Skipped            bool   `json:"skipped,omitempty"`
	Reason             string `json:"reason,omitempty"`
	Resumed            bool   `json:"resumed,omitempty"`
	RunID              string `json:"runId,omitempty"`
}

// Status describes the migration marker.
type Status struct {
	State      string
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Categories int
	Tasks      int
	// Legacy is set when data exists without a marker document.
	Legacy bool
}

// Engine runs the migration against a document store.
type Engine struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an Engine.
func New(store storage.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger, now: time.Now}
}

// Status reads the marker. Without a marker, any stored category counts as
// a completed migration made before markers existed.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	doc, err := e.store.Get(ctx, storage.Meta, markerKey)
	switch {
	case err == nil:
		return Status{
			State:      storage.String(doc.Fields, "state"),
			RunID:      storage.String(doc.Fields, "run_id"),
			StartedAt:  storage.Time(doc.Fields, "started_at"),
			FinishedAt: storage.Time(doc.Fields, "finished_at"),
			Categories: int(storage.Int(doc.Fields, "categories")),
			Tasks:      int(storage.Int(doc.Fields, "tasks")),
		}, nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return Status{}, fmt.Errorf("read migration marker: %w", err)
	}

	empty, err := storage.IsEmpty(ctx, e.store, storage.Categories)
	if err != nil {
		return Status{}, fmt.Errorf("check categories: %w", err)
	}
	if !empty {
		return Status{State: Complete, Legacy: true}, nil
	}
	return Status{State: NotMigrated}, nil
}

// Preview reports what Migrate would write for snap without touching the
// store.
func (e *Engine) Preview(snap configstore.Snapshot) Result {
	_, res := e.plan(snap, e.now())
	return res
}

// Migrate copies snap into the store. It is a no-op once a migration has
// completed. An interrupted run leaves the marker in progress and the next
// call resumes it; every write is a merge upsert so repeating one is safe.
//
// Two concurrent calls can both pass the guard and interleave their writes.
// Migration is expected to run once at startup, not under load.
func (e *Engine) Migrate(ctx context.Context, snap configstore.Snapshot) (Result, error) {
	status, err := e.Status(ctx)
	if err != nil {
		return Result{}, err
	}
	if status.State == Complete {
		e.logger.Info("migration skipped", slog.String("reason", "already migrated"), slog.Bool("legacy", status.Legacy))
		return Result{Skipped: true, Reason: "already migrated"}, nil
	}
	if snap.Empty() {
		return Result{}, ErrNoSourceData
	}

	now := e.now()
	runID := uuid.NewString()
	resumed := status.State == InProgress
	if resumed {
		e.logger.Warn("resuming interrupted migration", slog.String("previous_run", status.RunID))
	}

	marker := map[string]any{
		"state":      InProgress,
		"run_id":     runID,
		"started_at": storage.Timestamp(now),
	}
	if err := e.store.Put(ctx, storage.Meta, markerKey, marker, true); err != nil {
		return Result{}, fmt.Errorf("write migration marker: %w", err)
	}

	ops, res := e.plan(snap, now)
	res.RunID = runID
	res.Resumed = resumed

	batch := 0
	committed, err := storage.WriteBatches(ctx, e.store, ops, func(size int) {
		batch++
		e.logger.Info("migration batch committed", slog.String("run_id", runID), slog.Int("batch", batch), slog.Int("ops", size))
	})
	if err != nil {
		e.logger.Error("migration interrupted",
			slog.String("run_id", runID),
			slog.Int("committed_ops", committed),
			slog.Int("total_ops", len(ops)),
			slog.String("error", err.Error()))
		return Result{}, fmt.Errorf("migrate: %w", err)
	}

	done := map[string]any{
		"state":       Complete,
		"finished_at": storage.Timestamp(e.now()),
		"categories":  res.CategoriesMigrated,
		"tasks":       res.TasksMigrated,
	}
	if err := e.store.Put(ctx, storage.Meta, markerKey, done, true); err != nil {
		return Result{}, fmt.Errorf("complete migration marker: %w", err)
	}

	e.logger.Info("migration completed",
		slog.String("run_id", runID),
		slog.Int("categories", res.CategoriesMigrated),
		slog.Int("tasks", res.TasksMigrated))
	return res, nil
}

// plan emits one upsert per category followed by its tasks. Tasks without a
// usable id are numbered after the largest id in the snapshot.
func (e *Engine) plan(snap configstore.Snapshot, now time.Time) ([]storage.Op, Result) {
	var (
		ops    []storage.Op
		res    Result
		nextID = snap.MaxID()
		stamp  = storage.Timestamp(now)
	)

	for _, c := range snap.Categories {
		color := c.Color
		if color == "" {
			color = models.DefaultColor
		}
		ops = append(ops, storage.Op{
			Collection: storage.Categories,
			Key:        c.Name,
			Fields:     map[string]any{"color": color},
			Defaults:   map[string]any{"created_at": stamp},
			Merge:      true,
		})
		res.CategoriesMigrated++

		for _, t := range c.Tasks {
			id := t.ID
			if id <= 0 {
				nextID++
				id = nextID
				e.logger.Warn("task without id renumbered", slog.String("category", c.Name), slog.String("title", t.Title), slog.Int64("id", id))
			}

			fields := map[string]any{
				"title":       t.Title,
				"description": t.Description,
				"priority":    models.StringOr(&t.Priority, models.DefaultPriority),
				"status":      models.StringOr(&t.Status, models.DefaultStatus),
				"category":    c.Name,
			}
			defaults := map[string]any{"created_at": stamp, "updated_at": stamp}
			if t.CreatedAt != nil {
				fields["created_at"] = storage.Timestamp(*t.CreatedAt)
				delete(defaults, "created_at")
			}
			if t.UpdatedAt != nil {
				fields["updated_at"] = storage.Timestamp(*t.UpdatedAt)
				delete(defaults, "updated_at")
			}

			ops = append(ops, storage.Op{
				Collection: storage.Tasks,
				Key:        strconv.FormatInt(id, 10),
				Fields:     fields,
				Defaults:   defaults,
				Merge:      true,
			})
			res.TasksMigrated++
		}
	}
	return ops, res
}
