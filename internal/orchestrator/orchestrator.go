// Package orchestrator runs one batch: list the day's files, make sure
// each has a golden copy, execute the operations its role and the run
// mode call for, and record every step in the date's tracking file.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/backup"
	"github.com/ecsol/cars-numberplate-inference/internal/blob"
	"github.com/ecsol/cars-numberplate-inference/internal/catalog"
	"github.com/ecsol/cars-numberplate-inference/internal/models"
	"github.com/ecsol/cars-numberplate-inference/internal/pipeline"
	"github.com/ecsol/cars-numberplate-inference/internal/plan"
	"github.com/ecsol/cars-numberplate-inference/internal/runlock"
	"github.com/ecsol/cars-numberplate-inference/internal/tracking"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Lister enumerates candidate files. *catalog.Catalog implements it.
type Lister interface {
	ListFilesForDate(ctx context.Context, opts catalog.ListOptions) ([]models.FileDescriptor, error)
}

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	Catalog     Lister
	Store       blob.Store
	Detector    pipeline.Detector
	Renderer    pipeline.Renderer
	Classifier  *plan.Classifier
	Resolver    plan.Resolver
	TrackingDir string
	// LockFile is taken for the duration of Run when set.
	LockFile string
	// Out receives progress lines; nil discards them.
	Out io.Writer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Options selects what a run processes.
type Options struct {
	Date       time.Time
	Mode       plan.Mode
	Limit      int
	PathFilter string
	// Workers bounds how many car groups run at once.
	Workers int
	// Incremental narrows the listing to rows touched since the previous
	// run recorded in the tracking file.
	Incremental bool
}

// Orchestrator drives runs.
type Orchestrator struct {
	catalog     Lister
	guard       *backup.Guard
	executor    *pipeline.Executor
	classifier  *plan.Classifier
	resolver    plan.Resolver
	trackingDir string
	lockFile    string
	out         io.Writer
	now         func() time.Time

	outMu sync.Mutex
}

// New returns an orchestrator over d.
func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		catalog:     d.Catalog,
		guard:       backup.NewGuard(d.Store),
		executor:    pipeline.NewExecutor(d.Store, d.Detector, d.Renderer),
		classifier:  d.Classifier,
		resolver:    d.Resolver,
		trackingDir: d.TrackingDir,
		lockFile:    d.LockFile,
		out:         d.Out,
		now:         d.Now,
	}
	if o.classifier == nil {
		o.classifier = plan.NewClassifier(nil)
	}
	if o.resolver.NormalFirstOriginal == "" {
		o.resolver = plan.NewResolver("")
	}
	if o.out == nil {
		o.out = io.Discard
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Run processes one date under one mode. Individual file failures do not
// stop the run; they are reported in the summary. Run returns an error
// only when the run could not proceed: lock held, catalog unavailable,
// tracking file unreadable or unwritable, or ctx cancelled.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Mode == "" {
		opts.Mode = plan.ModeNormal
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	sum := &Summary{
		RunID:   uuid.NewString(),
		Date:    opts.Date,
		Mode:    opts.Mode,
		Started: o.now(),
	}

	if o.lockFile != "" {
		lock, err := runlock.Acquire(o.lockFile, runlock.Holder{RunID: sum.RunID, PID: os.Getpid(), Started: sum.Started})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		defer lock.Release()
	}

	listOpts := catalog.ListOptions{Date: opts.Date, Limit: opts.Limit, PathFilter: opts.PathFilter}
	if opts.Incremental {
		prev, err := tracking.Load(o.trackingDir, opts.Date)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		if prev != nil && prev.LastProcessedTime != nil {
			listOpts.Since = prev.LastProcessedTime
		}
	}

	listedAt := o.now()
	files, err := o.catalog.ListFilesForDate(ctx, listOpts)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	store, err := tracking.OpenWithClock(o.trackingDir, opts.Date, o.now)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	sum.TrackingPath = store.Path()
	agg := tracking.NewAggregator(store)
	groups := catalog.GroupByCar(files)
	sum.Listed = len(files)

	o.printf("platemask: run %s date=%s mode=%s files=%d cars=%d workers=%d\n",
		sum.RunID, opts.Date.Format("2006-01-02"), opts.Mode, len(files), len(groups), opts.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, grp := range groups {
		g.Go(func() error {
			return o.processGroup(gctx, store, agg, grp, opts.Mode, sum)
		})
	}
	runErr := g.Wait()

	if runErr == nil {
		runErr = store.MarkRun(sum.RunID, listedAt)
	}
	sum.Finished = o.now()
	sum.finish(store.Snapshot())
	if runErr != nil {
		return sum, fmt.Errorf("orchestrator: %w", runErr)
	}

	o.printf("platemask: run %s finished in %s: processed=%d skipped=%d verified=%d failed=%d cars_done=%d\n",
		sum.RunID, sum.Finished.Sub(sum.Started).Round(time.Millisecond), sum.Processed, sum.Skipped, sum.Verified, sum.Failed, len(sum.CarsDone))
	return sum, nil
}

// processGroup handles one car's files in branch order and re-evaluates
// the car after each file that finished.
func (o *Orchestrator) processGroup(ctx context.Context, store *tracking.Store, agg *tracking.Aggregator, grp catalog.Group, mode plan.Mode, sum *Summary) error {
	attempted := false
	for _, fd := range grp.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := o.processFile(ctx, store, fd, mode)
		if err != nil {
			return err
		}
		sum.add(res)
		if res.Skipped {
			continue
		}
		attempted = true
		if err := o.reevaluate(agg, grp.CarID, sum); err != nil {
			return err
		}
	}
	if !attempted {
		return o.reevaluate(agg, grp.CarID, sum)
	}
	return nil
}

func (o *Orchestrator) reevaluate(agg *tracking.Aggregator, carID string, sum *Summary) error {
	if carID == "" {
		return nil
	}
	done, err := agg.Reevaluate(carID)
	if err != nil {
		return err
	}
	if done {
		sum.carDone(carID)
	}
	return nil
}

// processFile runs one file through the lifecycle. The returned error is
// reserved for tracking persistence failures; everything else ends up in
// the record.
func (o *Orchestrator) processFile(ctx context.Context, store *tracking.Store, fd models.FileDescriptor, mode plan.Mode) (FileResult, error) {
	role := o.classifier.Classify(fd.BranchNo)
	res := FileResult{FileID: fd.FileID, CarID: fd.CarID, Path: fd.RelativePath, Role: role}

	rec, _, err := store.Observe(fd, string(role))
	if err != nil {
		return res, err
	}
	res.Status = rec.Status

	if mode.SkipsCompleted() && rec.Status.Completed() {
		res.Skipped = true
		return res, nil
	}
	ops := o.resolver.Resolve(role, mode)
	if len(ops) == 0 {
		res.Skipped = true
		return res, nil
	}

	if err := store.Transition(fd.FileID, tracking.StatusProcessing, tracking.Update{Mode: string(mode)}); err != nil {
		return res, err
	}

	entry, err := o.guard.Ensure(ctx, fd.RelativePath)
	if err != nil {
		return o.fail(store, res, &pipeline.FileError{Kind: pipeline.BackupCreationFailed, Path: fd.RelativePath, Err: err}, pipeline.Outcome{})
	}
	if entry.Created {
		o.printf("  backup %s\n", entry.Path)
	}

	outcome, err := o.executor.Execute(ctx, fd, ops)
	if err != nil {
		return o.fail(store, res, err, outcome)
	}
	if err := o.guard.Confirm(ctx, entry); err != nil {
		return o.fail(store, res, &pipeline.FileError{Kind: pipeline.BackupChanged, Path: entry.Path, Err: err}, outcome)
	}

	if err := store.Transition(fd.FileID, tracking.StatusVerified, tracking.Update{
		Detections:  outcome.Detections,
		OutputPaths: outcome.OutputPaths,
	}); err != nil {
		return res, err
	}
	res.Status = tracking.StatusVerified
	res.Detections = outcome.Detections
	o.printf("  ok   %d %s role=%s ops=%v%s\n", fd.FileID, fd.RelativePath, role, ops, detectionsSuffix(outcome.Detections))
	return res, nil
}

func (o *Orchestrator) fail(store *tracking.Store, res FileResult, cause error, outcome pipeline.Outcome) (FileResult, error) {
	msg := cause.Error()
	if pipeline.KindOf(cause) == "" {
		msg = "Error: " + msg
	}
	if err := store.Transition(res.FileID, tracking.StatusError, tracking.Update{
		Error:       msg,
		Detections:  outcome.Detections,
		OutputPaths: outcome.OutputPaths,
	}); err != nil {
		return res, err
	}
	res.Status = tracking.StatusError
	res.Error = msg
	o.printf("  FAIL %d %s: %s\n", res.FileID, res.Path, msg)
	return res, nil
}

func (o *Orchestrator) printf(format string, args ...any) {
	o.outMu.Lock()
	defer o.outMu.Unlock()
	fmt.Fprintf(o.out, format, args...)
}

func detectionsSuffix(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf(" plates=%d", *n)
}

// IsCatalogUnavailable reports whether a Run error came from the catalog.
func IsCatalogUnavailable(err error) bool {
	return errors.Is(err, catalog.ErrUnavailable)
}

// IsLocked reports whether a Run error means another run holds the lock.
func IsLocked(err error) bool {
	return errors.Is(err, runlock.ErrLocked)
}

// FileResult is what happened to one file in a run.
type FileResult struct {
	FileID     int64
	CarID      string
	Path       string
	Role       plan.Role
	Status     tracking.Status
	Skipped    bool
	Detections *int
	Error      string
}

// Summary describes a finished run.
type Summary struct {
	RunID        string
	Date         time.Time
	Mode         plan.Mode
	Started      time.Time
	Finished     time.Time
	TrackingPath string

	Listed    int
	Processed int
	Skipped   int
	Verified  int
	Failed    int
	Failures  []FileResult
	CarsDone  []string
	// Counts tallies every record in the tracking file after the run.
	Counts map[tracking.Status]int

	mu       sync.Mutex
	carsDone map[string]bool
}

// OK reports whether every attempted file was verified.
func (s *Summary) OK() bool { return s.Failed == 0 }

func (s *Summary) add(r FileResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Skipped {
		s.Skipped++
		return
	}
	s.Processed++
	switch r.Status {
	case tracking.StatusVerified:
		s.Verified++
	case tracking.StatusError:
		s.Failed++
		s.Failures = append(s.Failures, r)
	}
}

func (s *Summary) carDone(carID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.carsDone == nil {
		s.carsDone = make(map[string]bool)
	}
	if !s.carsDone[carID] {
		s.carsDone[carID] = true
		s.CarsDone = append(s.CarsDone, carID)
	}
}

func (s *Summary) finish(f *tracking.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Counts = f.Counts()
	sort.Strings(s.CarsDone)
	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].FileID < s.Failures[j].FileID })
}
