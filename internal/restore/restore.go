// Package restore copies golden copies back over originals for the files
// listed in a date's tracking file.
package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/backup"
	"github.com/ecsol/cars-numberplate-inference/internal/blob"
	"github.com/ecsol/cars-numberplate-inference/internal/tracking"
)

// ErrNoTracking is returned when the date has no tracking file.
var ErrNoTracking = errors.New("restore: no tracking file for date")

// Options selects what to restore.
type Options struct {
	Date time.Time
	// Statuses limits the records considered; empty means all.
	Statuses []tracking.Status
	// CarID keeps only records of one car, matched on the recorded car id
	// or on the id derived from the path.
	CarID  string
	Limit  int
	DryRun bool
}

// Failure is one file that could not be restored.
type Failure struct {
	FileID int64
	Path   string
	Err    error
}

// Result summarizes a restore.
type Result struct {
	Candidates int
	Restored   int
	Failures   []Failure
}

// Restorer restores originals from their golden copies.
type Restorer struct {
	guard       *backup.Guard
	trackingDir string
	out         io.Writer
}

// New returns a restorer over store reading tracking files from
// trackingDir. Progress lines go to out.
func New(store blob.Store, trackingDir string, out io.Writer) *Restorer {
	if out == nil {
		out = io.Discard
	}
	return &Restorer{guard: backup.NewGuard(store), trackingDir: trackingDir, out: out}
}

// Select returns the records opts picks from f, ordered by file id.
func Select(f *tracking.File, opts Options) []*tracking.Record {
	var out []*tracking.Record
	for _, r := range f.Filter(opts.Statuses...) {
		if opts.CarID != "" && r.CarID != opts.CarID && blob.CarKeyFromPath(r.Path) != opts.CarID {
			continue
		}
		out = append(out, r)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}

// Run restores the selected files. A missing backup fails only that file.
// The tracking file is read, never written.
func (r *Restorer) Run(ctx context.Context, opts Options) (*Result, error) {
	f, err := tracking.Load(r.trackingDir, opts.Date)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTracking, tracking.PathFor(r.trackingDir, opts.Date))
	}

	records := Select(f, opts)
	res := &Result{Candidates: len(records)}
	fmt.Fprintf(r.out, "restore: %s: %d of %d tracked files selected\n", f.Date, len(records), len(f.Processed))

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if opts.DryRun {
			ok, err := r.guard.HasBackup(ctx, rec.Path)
			switch {
			case err != nil:
				res.Failures = append(res.Failures, Failure{FileID: rec.FileID, Path: rec.Path, Err: err})
			case !ok:
				res.Failures = append(res.Failures, Failure{FileID: rec.FileID, Path: rec.Path, Err: backup.ErrNoBackup})
			default:
				fmt.Fprintf(r.out, "  [dry-run] %s <- %s\n", rec.Path, blob.BackupPath(rec.Path))
			}
			continue
		}
		if err := r.guard.Restore(ctx, rec.Path); err != nil {
			res.Failures = append(res.Failures, Failure{FileID: rec.FileID, Path: rec.Path, Err: err})
			fmt.Fprintf(r.out, "  FAIL %s: %v\n", rec.Path, err)
			continue
		}
		res.Restored++
		fmt.Fprintf(r.out, "  restored %s\n", rec.Path)
	}
	return res, nil
}
