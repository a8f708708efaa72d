package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for keys that would escape the storage root.
var ErrInvalidPath = errors.New("invalid storage path")

// LocalStorage stores generated documents on the local filesystem under
// basePath/<collection>/<id>/<filename>.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// Save writes reader to collection/id/filename and returns the storage path.
func (s *LocalStorage) Save(_ context.Context, collection, id, filename string, reader io.Reader) (string, error) {
	for _, part := range []string{collection, id, filename} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, part)
		}
	}
	dir := filepath.Join(s.basePath, collection, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	storagePath := filepath.Join(dir, filename)
	f, err := os.Create(storagePath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return storagePath, nil
}

// Open returns a reader for a path previously returned by Save.
func (s *LocalStorage) Open(_ context.Context, storagePath string) (io.ReadCloser, error) {
	if !s.within(storagePath) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, storagePath)
	}
	f, err := os.Open(storagePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes a stored file and its id directory when empty.
func (s *LocalStorage) Delete(_ context.Context, storagePath string) error {
	if !s.within(storagePath) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, storagePath)
	}
	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	_ = os.Remove(filepath.Dir(storagePath))
	return nil
}

func (s *LocalStorage) within(p string) bool {
	rel, err := filepath.Rel(s.basePath, p)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
