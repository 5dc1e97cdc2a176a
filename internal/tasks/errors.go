package tasks

import (
	"errors"
	"fmt"
	"strings"

	"taskboard/internal/storage"
)

var (
	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")
	// ErrCategoryNotFound is returned when a task names an unknown category.
	ErrCategoryNotFound = errors.New("category does not exist")
	// ErrStoreUnavailable marks backend failures; callers may retry.
	ErrStoreUnavailable = storage.ErrUnavailable
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("missing required fields")
	// ErrNoDocumentStore is returned by operations that need a document store
	// when the repository runs on the flat file only.
	ErrNoDocumentStore = errors.New("no document store configured")
	// ErrIDExhausted is returned when id allocation keeps colliding.
	ErrIDExhausted = errors.New("could not allocate a task id")
)

// ValidationError lists the required fields missing from a request.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// storeError converts anything outside the taxonomy into ErrStoreUnavailable.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}
}
