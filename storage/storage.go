// Package storage is the blob store for uploaded media, keyed by filename.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotFound reports that no upload exists under the given filename.
var ErrNotFound = errors.New("file not found")

type Store struct {
	dir     string
	maxSize int64
}

func NewStore(dir string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create upload directory %s: %w", dir, err)
	}
	return &Store{dir: dir, maxSize: maxSize}, nil
}

// Path resolves a filename inside the store, rejecting path traversal.
func (s *Store) Path(filename string) (string, error) {
	cleanFilename := filepath.Base(filename)
	if cleanFilename != filename || cleanFilename == "." || cleanFilename == ".." {
		return "", fmt.Errorf("invalid filename")
	}

	fullPath := filepath.Join(s.dir, cleanFilename)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return "", ErrNotFound
	}
	return fullPath, nil
}

// Save writes the uploaded content, overwriting any previous upload with the
// same name. Returns the number of bytes written.
func (s *Store) Save(filename string, r io.Reader) (int64, error) {
	cleanFilename := filepath.Base(filename)
	if cleanFilename != filename || cleanFilename == "." || cleanFilename == ".." {
		return 0, fmt.Errorf("invalid filename")
	}

	dst, err := os.Create(filepath.Join(s.dir, cleanFilename))
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	limited := &io.LimitedReader{R: r, N: s.maxSize + 1}
	written, err := io.Copy(dst, limited)
	if err != nil {
		return 0, fmt.Errorf("failed to save upload: %w", err)
	}
	if written > s.maxSize {
		os.Remove(dst.Name())
		return 0, fmt.Errorf("upload size exceeds limit of %d bytes", s.maxSize)
	}
	return written, nil
}

// List returns the stored filenames in sorted order. An empty store yields an
// empty, non-nil slice so the API serializes it as [].
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes an upload. Deleting an unknown filename returns ErrNotFound.
func (s *Store) Delete(filename string) error {
	path, err := s.Path(filename)
	if err != nil {
		return err
	}
	return os.Remove(path)
}
