package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/blob"
	"github.com/ecsol/cars-numberplate-inference/internal/models"
)

// ErrUnknownFile is returned for a file id that was never observed.
var ErrUnknownFile = errors.New("tracking: unknown file")

// ErrInvalidTransition is returned for a status change the lifecycle
// does not allow.
var ErrInvalidTransition = errors.New("tracking: invalid transition")

// PathFor returns the tracking file location for date under dir.
func PathFor(dir string, date time.Time) string {
	return filepath.Join(dir, "processed_"+date.Format("20060102")+".json")
}

// Load reads and validates the tracking file for date without taking
// ownership of it. It returns (nil, nil) when the file does not exist.
func Load(dir string, date time.Time) (*File, error) {
	return loadFile(PathFor(dir, date))
}

func loadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("tracking: read %s: %w", path, err)
	}
	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("tracking: %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tracking: decode %s: %w", path, err)
	}
	if f.Processed == nil {
		f.Processed = make(map[string]*Record)
	}
	if f.Cars == nil {
		f.Cars = make(map[string]*CarMarker)
	}
	return &f, nil
}

// Update carries the fields a transition may set.
type Update struct {
	Mode        string
	Detections  *int
	OutputPaths map[string]string
	// Error is stored on transitions to StatusError.
	Error string
}

// Store owns the tracking file for one date for the duration of a run.
// Every mutation is persisted with an atomic replace before it returns.
type Store struct {
	mu   sync.Mutex
	path string
	file *File
	now  func() time.Time
}

// Open loads the tracking file for date, or starts an empty one. Nothing
// is written until the first mutation.
func Open(dir string, date time.Time) (*Store, error) {
	return OpenWithClock(dir, date, time.Now)
}

// OpenWithClock is Open with an injectable clock.
func OpenWithClock(dir string, date time.Time, now func() time.Time) (*Store, error) {
	path := PathFor(dir, date)
	f, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = newFile(date, now())
	}
	return &Store{path: path, file: f, now: now}, nil
}

// Path returns the tracking file location.
func (s *Store) Path() string { return s.path }

// Observe registers fd, creating a pending record on first sight and
// refreshing its catalog metadata otherwise. It returns a copy of the
// record and whether it was created.
func (s *Store) Observe(fd models.FileDescriptor, role string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fd.Key()
	if rec, ok := s.file.Processed[key]; ok {
		if rec.CarID == fd.CarID && rec.Path == fd.RelativePath && rec.Role == role && sameBranch(rec.BranchNo, fd.BranchNo) {
			return *rec.clone(), false, nil
		}
		next := rec.clone()
		next.CarID, next.Path, next.Role, next.BranchNo = fd.CarID, fd.RelativePath, role, copyInt(fd.BranchNo)
		if err := s.commit(key, next); err != nil {
			return Record{}, false, err
		}
		return *next.clone(), false, nil
	}

	now := s.now()
	rec := &Record{
		FileID:        fd.FileID,
		CarID:         fd.CarID,
		Path:          fd.RelativePath,
		BranchNo:      copyInt(fd.BranchNo),
		Role:          role,
		Status:        StatusPending,
		StatusHistory: []HistoryEntry{{Status: StatusPending, At: now}},
		UpdatedAt:     now,
	}
	if err := s.commit(key, rec); err != nil {
		return Record{}, false, err
	}
	return *rec.clone(), true, nil
}

// Get returns a copy of the record for fileID.
func (s *Store) Get(fileID int64) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.file.Processed[Key(fileID)]
	if !ok {
		return Record{}, false
	}
	return *rec.clone(), true
}

// Transition moves fileID to status to, applying u, and persists.
func (s *Store) Transition(fileID int64, to Status, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(fileID)
	cur, ok := s.file.Processed[key]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFile, fileID)
	}
	if !isValidTransition(cur.Status, to) {
		return fmt.Errorf("%w: %d from %s to %s", ErrInvalidTransition, fileID, cur.Status, to)
	}
	rec := cur.clone()
	s.apply(rec, to)
	if u.Mode != "" {
		rec.Mode = u.Mode
	}
	switch to {
	case StatusProcessing:
		rec.Error = ""
	case StatusVerified:
		rec.Error = ""
		rec.Detections = copyInt(u.Detections)
		rec.OutputPaths = u.OutputPaths
	case StatusError:
		rec.Error = u.Error
		if u.Detections != nil {
			rec.Detections = copyInt(u.Detections)
		}
		if len(u.OutputPaths) > 0 {
			rec.OutputPaths = u.OutputPaths
		}
	}
	return s.commit(key, rec)
}

// MarkRun records the run id and the instant the run's catalog listing
// was taken, used as the lower bound of the next incremental fetch.
func (s *Store) MarkRun(runID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevID, prevAt := s.file.LastRunID, s.file.LastProcessedTime
	s.file.LastRunID = runID
	s.file.LastProcessedTime = &at
	if err := s.persist(); err != nil {
		s.file.LastRunID, s.file.LastProcessedTime = prevID, prevAt
		return err
	}
	return nil
}

// Snapshot returns a deep copy of the tracking file.
func (s *Store) Snapshot() *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.clone()
}

func (s *Store) apply(rec *Record, to Status) {
	now := s.now()
	rec.Status = to
	rec.StatusHistory = append(rec.StatusHistory, HistoryEntry{Status: to, At: now})
	rec.UpdatedAt = now
}

// commit stores rec under key and persists. On a failed write the previous
// record is put back, so memory never runs ahead of disk. Callers hold s.mu.
func (s *Store) commit(key string, rec *Record) error {
	prev, had := s.file.Processed[key]
	s.file.Processed[key] = rec
	if err := s.persist(); err != nil {
		if had {
			s.file.Processed[key] = prev
		} else {
			delete(s.file.Processed, key)
		}
		return err
	}
	return nil
}

// persist writes the whole file through a temporary file and rename.
// Callers hold s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return fmt.Errorf("tracking: encode: %w", err)
	}
	if err := blob.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("tracking: write %s: %w", s.path, err)
	}
	return nil
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sameBranch(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
