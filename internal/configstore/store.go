package configstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Store reads and writes the flat JSON file holding every category and task.
type Store struct {
	path   string
	logger *slog.Logger
}

// New returns a Store for the file at path.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the file contents. A missing or malformed file yields an
// empty snapshot; callers treat that as "no data".
func (s *Store) Load() Snapshot {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}
	}
	if err != nil {
		s.logger.Warn("unable to read data file", slog.String("path", s.path), slog.String("error", err.Error()))
		return Snapshot{}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("data file is malformed", slog.String("path", s.path), slog.String("error", err.Error()))
		return Snapshot{}
	}
	return snap
}

// Save replaces the file with snap. The previous file stays intact when the
// write fails.
func (s *Store) Save(snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	pretty, err := indent(raw)
	if err != nil {
		return fmt.Errorf("indent snapshot: %w", err)
	}
	if err := writeFileAtomic(s.path, pretty, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	return nil
}

func indent(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// writeFileAtomic writes into a sibling temp file and renames it over path,
// so concurrent readers see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
