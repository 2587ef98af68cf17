package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore stores media objects as files on the local filesystem. Intended
// for development; production deployments use the S3 backend.
type LocalStore struct {
	basePath  string
	publicURL string
}

// NewLocalStore creates a LocalStore at the given base path.
// It creates the directory if it does not exist.
func NewLocalStore(basePath, publicURL string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("media: create base directory: %w", err)
	}
	return &LocalStore{basePath: basePath, publicURL: publicURL}, nil
}

// resolve maps a key to a path under basePath, rejecting keys that would
// escape it.
func (s *LocalStore) resolve(key string) (string, error) {
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("media: invalid key %q", key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Put writes object data to a file using an atomic write pattern.
func (s *LocalStore) Put(_ context.Context, key string, data []byte) error {
	finalPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("media: create directory: %w", err)
	}

	// Write to a temp file in the same directory, then rename for atomicity.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("media: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("media: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("media: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("media: rename temp file: %w", err)
	}
	return nil
}

// Get reads object data from a file.
// Returns ErrNotFound if the object does not exist.
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("media: read file: %w", err)
	}
	return data, nil
}

// Delete removes an object file.
// Returns nil if the object does not exist (idempotent).
func (s *LocalStore) Delete(_ context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("media: remove file: %w", err)
	}
	return nil
}

// URL returns the public URL for a stored object.
func (s *LocalStore) URL(key string) string {
	return joinURL(s.publicURL, key)
}
