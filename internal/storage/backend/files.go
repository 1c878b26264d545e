package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Files stores each slot as one file in a directory.
// Writes go to a temporary file first and are renamed into place, so a crash
// mid-write leaves either the old record or the new one.
type Files struct {
	dir    string
	layout Layout
}

// NewFiles creates a file backend rooted at dir.
func NewFiles(dir string, layout Layout) (*Files, error) {
	if dir == "" {
		return nil, fmt.Errorf("files backend: directory required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create slot dir: %w", err)
	}
	return &Files{dir: dir, layout: layout}, nil
}

// Path returns the file path of k.
func (f *Files) Path(k Key) string {
	return filepath.Join(f.dir, f.layout.Name(k))
}

// Put writes data to the slot file, replacing any previous content.
func (f *Files) Put(_ context.Context, k Key, data []byte) error {
	path := f.Path(k)
	tmp, err := os.CreateTemp(f.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", k, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", k, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", k, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", k, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", k, err)
	}
	return nil
}

// Get reads the slot file.
func (f *Files) Get(_ context.Context, k Key) ([]byte, error) {
	data, err := os.ReadFile(f.Path(k))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(k)
		}
		return nil, fmt.Errorf("read %s: %w", k, err)
	}
	return data, nil
}

// Delete removes the slot file.
func (f *Files) Delete(_ context.Context, k Key) error {
	if err := os.Remove(f.Path(k)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", k, err)
	}
	return nil
}

// Exists reports whether the slot file exists.
func (f *Files) Exists(_ context.Context, k Key) (bool, error) {
	_, err := os.Stat(f.Path(k))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", k, err)
}

// Close is a no-op; files are opened per operation.
func (f *Files) Close() error {
	return nil
}
