// Package backup enforces the golden copy invariant: the first clean
// original seen for a path is copied to dir/.backup/name once and never
// replaced.
package backup

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ecsol/cars-numberplate-inference/internal/blob"
)

var (
	// ErrNoBackup is returned by Restore when no golden copy exists.
	ErrNoBackup = errors.New("backup: no golden copy")
	// ErrChanged is returned by Confirm when the golden copy is missing or
	// its bytes differ from the ones captured by Ensure.
	ErrChanged = errors.New("backup: golden copy changed")
)

// Entry describes the golden copy of one original.
type Entry struct {
	// Path is the backup location, e.g. /upfile/1041/8430/.backup/x.jpg.
	Path string
	// Created is true when this call captured the copy.
	Created bool
	Size    int64
	Sum     [sha256.Size]byte
}

// Guard creates and checks golden copies in a blob store.
type Guard struct {
	store blob.Store
}

// NewGuard returns a guard over store.
func NewGuard(store blob.Store) *Guard {
	return &Guard{store: store}
}

// Ensure returns the golden copy for rel, capturing the current original
// first when none exists. An existing copy is never written.
func (g *Guard) Ensure(ctx context.Context, rel string) (Entry, error) {
	backupPath := blob.BackupPath(rel)
	ok, err := g.store.Exists(ctx, backupPath)
	if err != nil {
		return Entry{}, fmt.Errorf("backup: check %s: %w", backupPath, err)
	}
	if ok {
		data, err := g.store.Read(ctx, backupPath)
		if err != nil {
			return Entry{}, fmt.Errorf("backup: read %s: %w", backupPath, err)
		}
		return Entry{Path: backupPath, Size: int64(len(data)), Sum: sha256.Sum256(data)}, nil
	}

	data, err := g.store.Read(ctx, rel)
	if err != nil {
		return Entry{}, fmt.Errorf("backup: read original %s: %w", rel, err)
	}
	if len(data) == 0 {
		return Entry{}, fmt.Errorf("backup: original %s is empty", rel)
	}
	if err := g.store.Write(ctx, backupPath, data); err != nil {
		return Entry{}, fmt.Errorf("backup: create %s: %w", backupPath, err)
	}
	return Entry{Path: backupPath, Created: true, Size: int64(len(data)), Sum: sha256.Sum256(data)}, nil
}

// Confirm checks that the golden copy still holds the bytes captured by
// Ensure.
func (g *Guard) Confirm(ctx context.Context, e Entry) error {
	data, err := g.store.Read(ctx, e.Path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return fmt.Errorf("%w: %s is missing", ErrChanged, e.Path)
		}
		return fmt.Errorf("backup: read %s: %w", e.Path, err)
	}
	sum := sha256.Sum256(data)
	if sum != e.Sum {
		return fmt.Errorf("%w: %s", ErrChanged, e.Path)
	}
	return nil
}

// Restore copies the golden copy of rel back over the original. The
// backup itself is only read.
func (g *Guard) Restore(ctx context.Context, rel string) error {
	backupPath := blob.BackupPath(rel)
	data, err := g.store.Read(ctx, backupPath)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return fmt.Errorf("%w for %s", ErrNoBackup, rel)
		}
		return fmt.Errorf("backup: read %s: %w", backupPath, err)
	}
	if err := g.store.Write(ctx, rel, data); err != nil {
		return fmt.Errorf("backup: restore %s: %w", rel, err)
	}
	return nil
}

// HasBackup reports whether rel already has a golden copy.
func (g *Guard) HasBackup(ctx context.Context, rel string) (bool, error) {
	return g.store.Exists(ctx, blob.BackupPath(rel))
}
