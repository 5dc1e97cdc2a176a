package configstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Task is a task as persisted in the flat file. The category is implied by
// the enclosing Category.
type Task struct {
	ID          int64      `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Priority    string     `json:"priority" yaml:"priority"`
	Status      string     `json:"status" yaml:"status"`
	CreatedAt   *time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Category holds a category and its tasks. Name is the key in the file.
type Category struct {
	Name  string `json:"-" yaml:"-"`
	Color string `json:"color" yaml:"color"`
	Tasks []Task `json:"tasks" yaml:"tasks"`
}

// Snapshot is the whole file. Categories keep the order they appear in on
// disk.
type Snapshot struct {
	Categories []Category
}

// Empty reports whether the snapshot has no categories.
func (s Snapshot) Empty() bool {
	return len(s.Categories) == 0
}

// Index returns the position of the named category or -1.
func (s Snapshot) Index(name string) int {
	for i := range s.Categories {
		if s.Categories[i].Name == name {
			return i
		}
	}
	return -1
}

// Locate returns the category and task positions of the task with id.
func (s Snapshot) Locate(id int64) (int, int, bool) {
	for ci := range s.Categories {
		for ti := range s.Categories[ci].Tasks {
			if s.Categories[ci].Tasks[ti].ID == id {
				return ci, ti, true
			}
		}
	}
	return 0, 0, false
}

// MaxID returns the largest task id in the snapshot, or 0.
func (s Snapshot) MaxID() int64 {
	var max int64
	for _, c := range s.Categories {
		for _, t := range c.Tasks {
			if t.ID > max {
				max = t.ID
			}
		}
	}
	return max
}

// TaskCount returns the number of tasks across all categories.
func (s Snapshot) TaskCount() int {
	n := 0
	for _, c := range s.Categories {
		n += len(c.Tasks)
	}
	return n
}

type categoryBody struct {
	Color string `json:"color" yaml:"color"`
	Tasks []Task `json:"tasks" yaml:"tasks"`
}

// MarshalJSON writes {"categories": {...}} preserving category order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"categories":{`)
	for i, c := range s.Categories {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		tasks := c.Tasks
		if tasks == nil {
			tasks = []Task{}
		}
		body, err := json.Marshal(categoryBody{Color: c.Color, Tasks: tasks})
		if err != nil {
			return nil, fmt.Errorf("encode category %q: %w", c.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the file format, keeping the key order of categories.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var top struct {
		Categories json.RawMessage `json:"categories"`
	}
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}
	s.Categories = nil
	if len(top.Categories) == 0 || string(top.Categories) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(top.Categories))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("categories must be an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected category key %v", tok)
		}
		var body categoryBody
		if err := dec.Decode(&body); err != nil {
			return fmt.Errorf("decode category %q: %w", name, err)
		}
		cat := Category{Name: name, Color: body.Color, Tasks: body.Tasks}
		if i := s.Index(name); i >= 0 {
			s.Categories[i] = cat
			continue
		}
		s.Categories = append(s.Categories, cat)
	}
	_, err = dec.Token()
	return err
}
