// Package tracking persists per-date processing state: one JSON file per
// day holding a status record for every file seen and a done marker for
// every completed car.
package tracking

import (
	"sort"
	"strconv"
	"time"
)

// Status is a file record's position in its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusVerified   Status = "verified"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusVerified, StatusDone, StatusError}

// ValidTransitions maps each status to its valid next statuses. Re-entry
// into processing covers retries, forced runs and crash recovery.
var ValidTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusProcessing, StatusVerified, StatusError},
	StatusVerified:   {StatusProcessing, StatusDone},
	StatusDone:       {StatusProcessing},
	StatusError:      {StatusProcessing},
}

// ParseStatus converts a status name into a Status.
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Completed reports whether the status counts toward car completion.
func (s Status) Completed() bool {
	return s == StatusVerified || s == StatusDone
}

func isValidTransition(from, to Status) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// HistoryEntry is one step in a record's status log.
type HistoryEntry struct {
	Status Status    `json:"status"`
	At     time.Time `json:"timestamp"`
}

// Record is the tracked state of one catalog file.
type Record struct {
	FileID        int64             `json:"file_id"`
	CarID         string            `json:"car_id"`
	Path          string            `json:"path"`
	BranchNo      *int              `json:"branch_no,omitempty"`
	Role          string            `json:"role,omitempty"`
	Mode          string            `json:"mode,omitempty"`
	Status        Status            `json:"status"`
	StatusHistory []HistoryEntry    `json:"status_history"`
	Detections    *int              `json:"detections,omitempty"`
	OutputPaths   map[string]string `json:"output_paths,omitempty"`
	Error         string            `json:"error,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (r *Record) clone() *Record {
	c := *r
	c.StatusHistory = append([]HistoryEntry(nil), r.StatusHistory...)
	if r.BranchNo != nil {
		b := *r.BranchNo
		c.BranchNo = &b
	}
	if r.Detections != nil {
		d := *r.Detections
		c.Detections = &d
	}
	if r.OutputPaths != nil {
		c.OutputPaths = make(map[string]string, len(r.OutputPaths))
		for k, v := range r.OutputPaths {
			c.OutputPaths[k] = v
		}
	}
	return &c
}

// CarMarker records that every file of a car reached a completed status.
type CarMarker struct {
	Status Status     `json:"status"`
	DoneAt *time.Time `json:"done_at,omitempty"`
}

// File is the on-disk tracking document for one date.
type File struct {
	Date              string                `json:"date"`
	CreatedAt         time.Time             `json:"created_at"`
	LastProcessedTime *time.Time            `json:"last_processed_time"`
	LastRunID         string                `json:"last_run_id,omitempty"`
	Processed         map[string]*Record    `json:"processed"`
	Cars              map[string]*CarMarker `json:"cars"`
}

func newFile(date time.Time, now time.Time) *File {
	return &File{
		Date:      date.Format("2006-01-02"),
		CreatedAt: now,
		Processed: make(map[string]*Record),
		Cars:      make(map[string]*CarMarker),
	}
}

func (f *File) clone() *File {
	c := *f
	if f.LastProcessedTime != nil {
		t := *f.LastProcessedTime
		c.LastProcessedTime = &t
	}
	c.Processed = make(map[string]*Record, len(f.Processed))
	for k, r := range f.Processed {
		c.Processed[k] = r.clone()
	}
	c.Cars = make(map[string]*CarMarker, len(f.Cars))
	for k, m := range f.Cars {
		mc := *m
		c.Cars[k] = &mc
	}
	return &c
}

// Counts tallies records by status.
func (f *File) Counts() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, r := range f.Processed {
		counts[r.Status]++
	}
	return counts
}

// Filter returns the records whose status is in statuses, or every
// record when statuses is empty, ordered by file id.
func (f *File) Filter(statuses ...Status) []*Record {
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*Record
	for _, r := range f.Processed {
		if len(want) == 0 || want[r.Status] {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

// CarRecords returns the records of one car ordered by file id.
func (f *File) CarRecords(carID string) []*Record {
	var out []*Record
	for _, r := range f.Processed {
		if r.CarID == carID {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

// Key is the processed map key for a file id.
func Key(fileID int64) string {
	return strconv.FormatInt(fileID, 10)
}

func sortRecords(rs []*Record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].FileID < rs[j].FileID })
}
