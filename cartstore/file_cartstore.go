// cartstore/file_cartstore.go

package cartstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileCartStore persists every key into one JSON object on local disk, the
// way a browser keeps localStorage: string keys to string values.
type FileCartStore struct {
	mu   sync.Mutex
	path string
}

// NewFileCartStore returns a store backed by the file at path. The file is
// created on the first write.
func NewFileCartStore(path string) *FileCartStore {
	return &FileCartStore{path: path}
}

// Initialize creates the parent directory.
func (f *FileCartStore) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", f.path)
	}
	return nil
}

// Get returns the value under key.
func (f *FileCartStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return nil, err
	}
	val, ok := entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(val), nil
}

// Set writes value under key, replacing the file atomically.
func (f *FileCartStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	entries[key] = string(value)
	return f.write(entries)
}

// Delete removes key.
func (f *FileCartStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return f.write(entries)
}

// Ping reports whether the directory holding the file exists.
func (f *FileCartStore) Ping(ctx context.Context) bool {
	info, err := os.Stat(filepath.Dir(f.path))
	return err == nil && info.IsDir()
}

func (f *FileCartStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", f.path)
	}
	entries := map[string]string{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "decode %s", f.path)
	}
	return entries, nil
}

func (f *FileCartStore) write(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode entries")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", f.path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrapf(err, "replace %s", f.path)
	}
	return nil
}
