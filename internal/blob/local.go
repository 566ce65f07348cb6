package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects under a root directory, typically an S3 mount.
type LocalStore struct {
	root string
}

// NewLocalStore returns a store rooted at root.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Resolve maps a relative path to its location on disk. ".." segments are
// resolved against "/" first, so the result never leaves the root.
func (s *LocalStore) Resolve(p string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(p, "/"))
	return filepath.Join(s.root, clean), nil
}

// Read returns the bytes stored at p.
func (s *LocalStore) Read(ctx context.Context, p string) ([]byte, error) {
	full, err := s.Resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob: read %s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("blob: read %s: %w", p, err)
	}
	return data, nil
}

// Write replaces p atomically: the bytes go to a temporary file in the
// same directory which is then renamed into place.
func (s *LocalStore) Write(ctx context.Context, p string, data []byte) error {
	full, err := s.Resolve(p)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(full, data, 0o644); err != nil {
		return fmt.Errorf("blob: write %s: %w", p, err)
	}
	return nil
}

// Exists reports whether p is present.
func (s *LocalStore) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.Size(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Size returns the length of p.
func (s *LocalStore) Size(ctx context.Context, p string) (int64, error) {
	full, err := s.Resolve(p)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("blob: stat %s: %w", p, ErrNotFound)
		}
		return 0, fmt.Errorf("blob: stat %s: %w", p, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("blob: stat %s: is a directory", p)
	}
	return info.Size(), nil
}

// WriteFileAtomic writes data to a temp file next to name, syncs it and
// renames it over name, creating parent directories as needed.
func WriteFileAtomic(name string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, name)
}
