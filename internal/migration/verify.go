package migration

import (
	"context"
	"fmt"

	"taskboard/internal/models"
	"taskboard/internal/storage"
)

// CategoryReport is one line of a verification report.
type CategoryReport struct {
	Name  string
	Color string
	Tasks int
}

// Report summarizes what the document store holds after a migration.
type Report struct {
	Categories []CategoryReport
	// Orphans counts tasks per category name that has no category document.
	Orphans map[string]int
	Tasks   int
}

// Verify counts categories and tasks per category in the store.
func (e *Engine) Verify(ctx context.Context) (Report, error) {
	cur, err := e.store.ListAll(ctx, storage.Categories)
	if err != nil {
		return Report{}, fmt.Errorf("list categories: %w", err)
	}
	cats, err := storage.Collect(cur)
	if err != nil {
		return Report{}, fmt.Errorf("list categories: %w", err)
	}

	cur, err = e.store.ListAll(ctx, storage.Tasks)
	if err != nil {
		return Report{}, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := storage.Collect(cur)
	if err != nil {
		return Report{}, fmt.Errorf("list tasks: %w", err)
	}

	counts := make(map[string]int)
	for _, t := range tasks {
		counts[storage.String(t.Fields, "category")]++
	}

	report := Report{Tasks: len(tasks), Orphans: map[string]int{}}
	for _, c := range cats {
		color := storage.String(c.Fields, "color")
		if color == "" {
			color = models.DefaultColor
		}
		report.Categories = append(report.Categories, CategoryReport{Name: c.Key, Color: color, Tasks: counts[c.Key]})
		delete(counts, c.Key)
	}
	for name, n := range counts {
		report.Orphans[name] = n
	}
	return report, nil
}
