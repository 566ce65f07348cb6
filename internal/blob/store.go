// Package blob reads and writes image bytes by relative path, uniformly
// over local disk (or an S3 mount) and object storage.
package blob

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned when a path has no object.
var ErrNotFound = errors.New("blob: not found")

// Directory names used next to every original.
const (
	BackupDirName = ".backup"
	DetectDirName = ".detect"
)

// Store is the storage capability used by the backup guard, the pipeline
// and the restore utility. Paths are catalog-relative, e.g.
// /upfile/1041/8430/20220824190333_1.jpg.
type Store interface {
	Read(ctx context.Context, p string) ([]byte, error)
	Write(ctx context.Context, p string, data []byte) error
	Exists(ctx context.Context, p string) (bool, error)
	// Size returns the stored length in bytes.
	Size(ctx context.Context, p string) (int64, error)
}

// BackupPath is the golden copy location for rel: dir/.backup/name.
func BackupPath(rel string) string {
	return sibling(rel, BackupDirName)
}

// DetectPath is the masked derivative location for rel: dir/.detect/name.
func DetectPath(rel string) string {
	return sibling(rel, DetectDirName)
}

func sibling(rel, dirName string) string {
	dir, name := path.Split(rel)
	return path.Join(dir, dirName, name)
}

// CarKeyFromPath derives the vehicle id from the two-level directory
// layout: /upfile/1041/8430/x.jpg -> 10418430. It returns "" when the
// path is too shallow.
func CarKeyFromPath(rel string) string {
	parts := strings.Split(rel, "/")
	if len(parts) < 4 {
		return ""
	}
	return parts[2] + parts[3]
}

// Copy reads src and writes the same bytes to dst.
func Copy(ctx context.Context, s Store, src, dst string) error {
	data, err := s.Read(ctx, src)
	if err != nil {
		return err
	}
	return s.Write(ctx, dst, data)
}
