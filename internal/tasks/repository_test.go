package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"taskboard/internal/configstore"
	"taskboard/internal/models"
	"taskboard/internal/storage"
	"taskboard/internal/storage/sqlite"
)

var (
	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
)

func ptr(s string) *string { return &s }

func newTask(title, category string) models.NewTask {
	return models.NewTask{
		Title:       ptr(title),
		Description: ptr(""),
		Priority:    ptr("high"),
		Category:    ptr(category),
	}
}

// clock hands out t0 until set is called.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newSQLite(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "tasks.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRepo(t *testing.T, docs storage.Store) (*Repository, *configstore.Store, *clock) {
	t.Helper()
	file := configstore.New(filepath.Join(t.TempDir(), "tasks-config.json"), nil)
	repo := New(docs, file, nil)
	c := &clock{now: t0}
	repo.file.now = c.Now
	if repo.docs != nil {
		repo.docs.now = c.Now
	}
	return repo, file, c
}

func seedCategories(t *testing.T, s storage.Store, names ...string) {
	t.Helper()
	colors := []string{"#ff0000", "#00ff00", "#0000ff"}
	for i, name := range names {
		fields := map[string]any{"color": colors[i%len(colors)]}
		if err := s.Put(context.Background(), storage.Categories, name, fields, false); err != nil {
			t.Fatalf("seed category %s: %v", name, err)
		}
	}
}

func seedTask(t *testing.T, s storage.Store, id int64, category string) {
	t.Helper()
	task := models.Task{ID: id, Title: fmt.Sprintf("task %d", id), Priority: "low", Status: "Open", Category: category, CreatedAt: t0, UpdatedAt: t0}
	if err := s.Put(context.Background(), storage.Tasks, taskKey(id), encodeTask(task), false); err != nil {
		t.Fatalf("seed task %d: %v", id, err)
	}
}

func sampleFile() configstore.Snapshot {
	return configstore.Snapshot{Categories: []configstore.Category{
		{Name: "Work", Color: "#ff0000", Tasks: []configstore.Task{
			{ID: 1, Title: "Ship", Priority: "high", Status: "Open"},
			{ID: 5, Title: "Review", Priority: "low", Status: "Done"},
		}},
		{Name: "Home", Tasks: []configstore.Task{}},
	}}
}

func TestCreateTaskAssignsNextID(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	seedCategories(t, store, "Work")
	seedTask(t, store, 3, "Work")
	seedTask(t, store, 7, "Work")
	repo, _, _ := newRepo(t, store)

	got, err := repo.CreateTask(ctx, newTask("Write docs", "Work"))
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if got.ID != 8 {
		t.Fatalf("id = %d, want 8", got.ID)
	}
	if got.Status != models.DefaultStatus {
		t.Fatalf("status = %q, want %q", got.Status, models.DefaultStatus)
	}
	if !got.CreatedAt.Equal(t0) || !got.UpdatedAt.Equal(t0) {
		t.Fatalf("timestamps = %v/%v, want %v", got.CreatedAt, got.UpdatedAt, t0)
	}

	all := repo.ListTasks(ctx)
	if len(all) != 3 {
		t.Fatalf("ListTasks() returned %d tasks, want 3", len(all))
	}
	last := all[2]
	if last.ID != 8 || last.Title != "Write docs" || last.Priority != "high" || last.CategoryColor != "#ff0000" {
		t.Fatalf("created task listed as %+v", last)
	}
}

func TestCreateTaskDefaultsPriority(t *testing.T) {
	store := newSQLite(t)
	seedCategories(t, store, "Work")
	repo, _, _ := newRepo(t, store)

	in := newTask("x", "Work")
	in.Priority = ptr("")
	got, err := repo.CreateTask(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if got.Priority != models.DefaultPriority {
		t.Fatalf("priority = %q, want %q", got.Priority, models.DefaultPriority)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	store := newSQLite(t)
	seedCategories(t, store, "Work")
	repo, _, _ := newRepo(t, store)

	_, err := repo.CreateTask(context.Background(), models.NewTask{Description: ptr("d"), Priority: ptr("low")})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %T is not a *ValidationError", err)
	}
	if want := []string{"title", "category"}; !reflect.DeepEqual(verr.Fields, want) {
		t.Fatalf("fields = %v, want %v", verr.Fields, want)
	}
}

func TestCreateTaskUnknownCategory(t *testing.T) {
	store := newSQLite(t)
	seedCategories(t, store, "Work")
	repo, _, _ := newRepo(t, store)

	_, err := repo.CreateTask(context.Background(), newTask("x", "Nowhere"))
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("error = %v, want ErrCategoryNotFound", err)
	}
	if n := len(repo.ListTasks(context.Background())); n != 0 {
		t.Fatalf("%d tasks stored after failed create", n)
	}
}

// racingStore lets another writer claim the first id it is asked to create.
type racingStore struct {
	storage.Store
	raced bool
}

func (r *racingStore) Create(ctx context.Context, collection, key string, fields map[string]any) error {
	if !r.raced {
		r.raced = true
		other := map[string]any{"title": "other", "category": "Work"}
		if err := r.Store.Create(ctx, collection, key, other); err != nil {
			return err
		}
	}
	return r.Store.Create(ctx, collection, key, fields)
}

func TestCreateTaskRetriesTakenID(t *testing.T) {
	store := newSQLite(t)
	seedCategories(t, store, "Work")
	repo, _, _ := newRepo(t, &racingStore{Store: store})

	got, err := repo.CreateTask(context.Background(), newTask("mine", "Work"))
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if got.ID != 2 {
		t.Fatalf("id = %d, want 2", got.ID)
	}
	doc, err := store.Get(context.Background(), storage.Tasks, "1")
	if err != nil {
		t.Fatal(err)
	}
	if title := storage.String(doc.Fields, "title"); title != "other" {
		t.Fatalf("task 1 was overwritten, title = %q", title)
	}
}

// takenStore reports every id as already taken.
type takenStore struct {
	storage.Store
}

func (takenStore) Create(context.Context, string, string, map[string]any) error {
	return storage.ErrExists
}

func TestCreateTaskGivesUpAfterRepeatedConflicts(t *testing.T) {
	store := newSQLite(t)
	seedCategories(t, store, "Work")
	repo, _, _ := newRepo(t, takenStore{Store: store})

	_, err := repo.CreateTask(context.Background(), newTask("x", "Work"))
	if !errors.Is(err, ErrIDExhausted) {
		t.Fatalf("error = %v, want ErrIDExhausted", err)
	}
}

func TestUpdateTaskEmptyPatchOnlyTouchesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	seedCategories(t, store, "Work")
	repo, _, clk := newRepo(t, store)

	created, err := repo.CreateTask(ctx, newTask("x", "Work"))
	if err != nil {
		t.Fatal(err)
	}
	clk.set(t1)

	res, err := repo.UpdateTask(ctx, created.ID, models.TaskPatch{})
	if err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if len(res.Ignored) != 0 {
		t.Fatalf("ignored = %v, want none", res.Ignored)
	}

	stored := repo.ListTasks(ctx)[0]
	if !stored.UpdatedAt.Equal(t1) {
		t.Fatalf("updatedAt = %v, want %v", stored.UpdatedAt, t1)
	}
	if !stored.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("createdAt changed to %v", stored.CreatedAt)
	}
	stored.UpdatedAt, created.UpdatedAt = time.Time{}, time.Time{}
	stored.CreatedAt, created.CreatedAt = time.Time{}, time.Time{}
	stored.CategoryColor = ""
	if stored != created {
		t.Fatalf("task changed: got %+v, want %+v", stored, created)
	}
}

func TestUpdateTaskCategory(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	seedCategories(t, store, "Work", "Home")
	seedTask(t, store, 1, "Work")
	repo, _, _ := newRepo(t, store)

	res, err := repo.UpdateTask(ctx, 1, models.TaskPatch{Category: ptr("Home"), Status: ptr("Done")})
	if err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if res.Task.Category != "Home" || res.Task.Status != "Done" {
		t.Fatalf("result = %+v", res.Task)
	}
	cats := repo.ListCategories(ctx)
	if len(cats["Work"].Tasks) != 0 || len(cats["Home"].Tasks) != 1 {
		t.Fatalf("task not moved: %+v", cats)
	}

	res, err = repo.UpdateTask(ctx, 1, models.TaskPatch{Category: ptr("Nowhere"), Title: ptr("renamed")})
	if err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if !reflect.DeepEqual(res.Ignored, []string{"category"}) {
		t.Fatalf("ignored = %v, want [category]", res.Ignored)
	}
	got := repo.ListCategories(ctx)["Home"].Tasks
	if len(got) != 1 || got[0].Title != "renamed" {
		t.Fatalf("Home tasks = %+v, want renamed task kept in Home", got)
	}
}

func TestDeleteThenUpdateIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	seedCategories(t, store, "Work")
	seedTask(t, store, 4, "Work")
	repo, _, _ := newRepo(t, store)

	if err := repo.DeleteTask(ctx, 4); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if _, err := repo.UpdateTask(ctx, 4, models.TaskPatch{Title: ptr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateTask() error = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteTask(ctx, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteTask() error = %v, want ErrNotFound", err)
	}
}

func TestListCategoriesPlaceholder(t *testing.T) {
	repo, _, _ := newRepo(t, newSQLite(t))

	cats := repo.ListCategories(context.Background())
	if !IsPlaceholder(cats) {
		t.Fatalf("ListCategories() = %+v, want placeholder", cats)
	}
	if group := cats[PlaceholderCategory]; group.Color != models.DefaultColor || group.Tasks == nil {
		t.Fatalf("placeholder group = %+v", group)
	}
	if tasks := repo.ListTasks(context.Background()); len(tasks) != 0 || tasks == nil {
		t.Fatalf("ListTasks() = %#v, want empty slice", tasks)
	}
}

func TestListCategoriesShowsOrphans(t *testing.T) {
	store := newSQLite(t)
	seedCategories(t, store, "Work")
	seedTask(t, store, 1, "Gone")
	repo, _, _ := newRepo(t, store)

	cats := repo.ListCategories(context.Background())
	group, ok := cats["Gone"]
	if !ok || group.Color != models.DefaultColor || len(group.Tasks) != 1 {
		t.Fatalf("orphan group = %+v (present %v)", group, ok)
	}
}

// downStore fails every read the way an unreachable backend would.
type downStore struct {
	storage.Store
}

func (downStore) Get(context.Context, string, string) (storage.Document, error) {
	return storage.Document{}, fmt.Errorf("dial: %w", storage.ErrUnavailable)
}

func (downStore) ListAll(context.Context, string) (storage.Cursor, error) {
	return nil, fmt.Errorf("dial: %w", storage.ErrUnavailable)
}

func TestListCategoriesFallsBackToFile(t *testing.T) {
	tests := []struct {
		name  string
		store func(t *testing.T) storage.Store
	}{
		{"unavailable", func(*testing.T) storage.Store { return downStore{} }},
		{"empty", func(t *testing.T) storage.Store { return newSQLite(t) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, file, _ := newRepo(t, tt.store(t))
			if err := file.Save(sampleFile()); err != nil {
				t.Fatal(err)
			}

			cats := repo.ListCategories(context.Background())
			if len(cats) != 2 {
				t.Fatalf("ListCategories() = %+v, want file contents", cats)
			}
			if got := cats["Work"]; got.Color != "#ff0000" || len(got.Tasks) != 2 || got.Tasks[1].ID != 5 {
				t.Fatalf("Work = %+v", got)
			}
			if got := cats["Home"]; got.Color != models.DefaultColor {
				t.Fatalf("Home color = %q, want default", got.Color)
			}
		})
	}
}

func TestWritesSurfaceUnavailableStore(t *testing.T) {
	repo, _, _ := newRepo(t, downStore{})

	if _, err := repo.CreateTask(context.Background(), newTask("x", "Work")); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("CreateTask() error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := repo.UpdateTask(context.Background(), 1, models.TaskPatch{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("UpdateTask() error = %v, want ErrStoreUnavailable", err)
	}
	if err := repo.DeleteTask(context.Background(), 1); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("DeleteTask() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	repo, file, clk := newRepo(t, nil)
	if err := file.Save(sampleFile()); err != nil {
		t.Fatal(err)
	}
	if repo.Backend() != "file" {
		t.Fatalf("Backend() = %q, want file", repo.Backend())
	}

	created, err := repo.CreateTask(ctx, newTask("Plan", "Home"))
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if created.ID != 6 || created.Status != models.DefaultStatus {
		t.Fatalf("created = %+v, want id 6 with default status", created)
	}
	if _, err := repo.CreateTask(ctx, newTask("x", "Nowhere")); !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("CreateTask() error = %v, want ErrCategoryNotFound", err)
	}

	clk.set(t1)
	res, err := repo.UpdateTask(ctx, 1, models.TaskPatch{Category: ptr("Home")})
	if err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if res.Task.Category != "Home" || !res.Task.UpdatedAt.Equal(t1) {
		t.Fatalf("update result = %+v", res.Task)
	}
	snap := file.Load()
	if ci, _, ok := snap.Locate(1); !ok || snap.Categories[ci].Name != "Home" {
		t.Fatalf("task 1 not moved to Home: %+v", snap)
	}
	if got := len(snap.Categories[0].Tasks); got != 1 {
		t.Fatalf("Work has %d tasks, want 1", got)
	}

	res, err = repo.UpdateTask(ctx, 5, models.TaskPatch{Category: ptr("Nowhere")})
	if err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if !reflect.DeepEqual(res.Ignored, []string{"category"}) || res.Task.Category != "Work" {
		t.Fatalf("update result = %+v", res)
	}

	if err := repo.DeleteTask(ctx, 5); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if _, err := repo.UpdateTask(ctx, 5, models.TaskPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateTask() error = %v, want ErrNotFound", err)
	}
	if n := file.Load().TaskCount(); n != 2 {
		t.Fatalf("file holds %d tasks, want 2", n)
	}
}

func TestMigrateWithoutDocumentStore(t *testing.T) {
	repo, _, _ := newRepo(t, nil)
	if _, err := repo.Migrate(context.Background()); !errors.Is(err, ErrNoDocumentStore) {
		t.Fatalf("Migrate() error = %v, want ErrNoDocumentStore", err)
	}
	if _, err := repo.ExportSnapshot(context.Background()); !errors.Is(err, ErrNoDocumentStore) {
		t.Fatalf("ExportSnapshot() error = %v, want ErrNoDocumentStore", err)
	}
}

func TestMigrateThenServeFromStore(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	repo, file, _ := newRepo(t, store)
	if err := file.Save(sampleFile()); err != nil {
		t.Fatal(err)
	}

	res, err := repo.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if res.CategoriesMigrated != 2 || res.TasksMigrated != 2 {
		t.Fatalf("result = %+v", res)
	}

	created, err := repo.CreateTask(ctx, newTask("next", "Home"))
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if created.ID != 6 {
		t.Fatalf("id = %d, want 6", created.ID)
	}
	// The file is not touched by writes to the store.
	if n := file.Load().TaskCount(); n != 2 {
		t.Fatalf("file holds %d tasks, want 2", n)
	}
}

func TestSyncFile(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	seedCategories(t, store, "Work", "Home")
	seedTask(t, store, 9, "Work")
	seedTask(t, store, 2, "Work")
	seedTask(t, store, 3, "Gone")
	repo, file, _ := newRepo(t, store)

	if err := repo.SyncFile(ctx); err != nil {
		t.Fatalf("SyncFile() error = %v", err)
	}
	snap := file.Load()
	var names []string
	for _, c := range snap.Categories {
		names = append(names, c.Name)
	}
	if want := []string{"Work", "Home", "Gone"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("categories = %v, want %v", names, want)
	}
	work := snap.Categories[0].Tasks
	if len(work) != 2 || work[0].ID != 2 || work[1].ID != 9 {
		t.Fatalf("Work tasks = %+v, want ids 2 and 9", work)
	}
	if work[0].CreatedAt == nil || !work[0].CreatedAt.Equal(t0) {
		t.Fatalf("createdAt = %v, want %v", work[0].CreatedAt, t0)
	}
}

func TestSyncFileKeepsFileWhenStoreEmpty(t *testing.T) {
	repo, file, _ := newRepo(t, newSQLite(t))
	if err := file.Save(sampleFile()); err != nil {
		t.Fatal(err)
	}
	if err := repo.SyncFile(context.Background()); err != nil {
		t.Fatalf("SyncFile() error = %v", err)
	}
	if n := file.Load().TaskCount(); n != 2 {
		t.Fatalf("file holds %d tasks, want 2", n)
	}
}
