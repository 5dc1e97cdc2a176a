package models

import "time"

const (
	// DefaultColor is used for categories that do not carry a color.
	DefaultColor = "#666666"
	// DefaultPriority is applied to tasks created without a priority.
	DefaultPriority = "medium"
	// DefaultStatus is applied to tasks created without a status.
	DefaultStatus = "Open"
)

// Category groups tasks on the dashboard. The name is its identifier.
type Category struct {
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// Task represents a single unit of work.
type Task struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Priority      string    `json:"priority"`
	Status        string    `json:"status"`
	Category      string    `json:"category"`
	CategoryColor string    `json:"categoryColor,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CategoryTasks is the grouped view rendered by the dashboard.
type CategoryTasks struct {
	Color string `json:"color"`
	Tasks []Task `json:"tasks"`
}

// NewTask carries creation input. A nil field means the caller omitted it;
// an empty string is a valid value.
type NewTask struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Category    *string `json:"category"`
	Status      *string `json:"status"`
}

// Missing returns the names of required fields that were not supplied.
func (n NewTask) Missing() []string {
	var missing []string
	if n.Title == nil {
		missing = append(missing, "title")
	}
	if n.Description == nil {
		missing = append(missing, "description")
	}
	if n.Priority == nil {
		missing = append(missing, "priority")
	}
	if n.Category == nil {
		missing = append(missing, "category")
	}
	return missing
}

// TaskPatch lists the fields an update touches. Nil fields are left alone.
type TaskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	Category    *string `json:"category"`
}

// Apply copies the present fields of the patch onto t, except the category.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}

// StringOr returns *v, or fallback when v is nil or empty.
func StringOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}
