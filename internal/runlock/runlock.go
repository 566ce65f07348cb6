// Package runlock prevents overlapping runs with an advisory file lock.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("runlock: another run holds the lock")

// Holder identifies the run that owns the lock. It is written into the
// lock file so a blocked run can say who it is waiting on.
type Holder struct {
	RunID   string    `json:"run_id"`
	PID     int       `json:"pid"`
	Started time.Time `json:"started"`
}

// Lock is a held run lock.
type Lock struct {
	fl   *flock.Flock
	path string
}

// Acquire takes the lock at path without blocking.
func Acquire(path string, h Holder) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("runlock: create dir: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("runlock: lock %s: %w", path, err)
	}
	if !ok {
		if cur, err := ReadHolder(path); err == nil && cur.RunID != "" {
			return nil, fmt.Errorf("%w: run %s (pid %d) since %s", ErrLocked, cur.RunID, cur.PID, cur.Started.Format(time.RFC3339))
		}
		return nil, ErrLocked
	}
	if h.PID == 0 {
		h.PID = os.Getpid()
	}
	data, _ := json.Marshal(h)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("runlock: write holder: %w", err)
	}
	return &Lock{fl: fl, path: path}, nil
}

// Probe reports whether another run currently holds the lock at path,
// and who, without writing to the file. A missing file is not held.
func Probe(path string) (Holder, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Holder{}, false, nil
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return Holder{}, false, fmt.Errorf("runlock: probe %s: %w", path, err)
	}
	if ok {
		fl.Unlock()
		return Holder{}, false, nil
	}
	h, _ := ReadHolder(path)
	return h, true, nil
}

// ReadHolder returns the holder recorded in the lock file.
func ReadHolder(path string) (Holder, error) {
	var h Holder
	data, err := os.ReadFile(path)
	if err != nil {
		return h, fmt.Errorf("runlock: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("runlock: decode %s: %w", path, err)
	}
	return h, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. The file stays in place.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("runlock: unlock %s: %w", l.path, err)
	}
	return nil
}
