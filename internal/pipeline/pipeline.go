// Package pipeline executes the operations planned for one file: it picks
// the input bytes, runs detection and rendering, writes each output and
// verifies it landed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ecsol/cars-numberplate-inference/internal/blob"
	"github.com/ecsol/cars-numberplate-inference/internal/models"
	"github.com/ecsol/cars-numberplate-inference/internal/plan"
)

// Point is a pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlateRegion is one detected plate: its outline and the detector's
// confidence.
type PlateRegion struct {
	Polygon    []Point `json:"polygon"`
	Confidence float64 `json:"confidence"`
}

// Detector locates plates in an encoded image.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]PlateRegion, error)
}

// Renderer masks regions and composites the banner onto an encoded image,
// returning the re-encoded result.
type Renderer interface {
	Render(ctx context.Context, image []byte, regions []PlateRegion, masking, banner bool) ([]byte, error)
}

// ErrorKind classifies per-file failures.
type ErrorKind string

const (
	BackupCreationFailed     ErrorKind = "BackupCreationFailed"
	OutputVerificationFailed ErrorKind = "OutputVerificationFailed"
	DetectorFailure          ErrorKind = "DetectorFailure"
	RendererFailure          ErrorKind = "RendererFailure"
	StorageFailure           ErrorKind = "StorageFailure"
	BackupChanged            ErrorKind = "BackupChanged"
)

// FileError is a classified failure for one file.
type FileError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// KindOf returns the kind of a *FileError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Outcome is the result of a successful Execute.
type Outcome struct {
	// Detections is nil when no operation ran the detector.
	Detections *int
	// OutputPaths maps target name to the written path.
	OutputPaths map[string]string
}

// Executor runs operations against a blob store.
type Executor struct {
	store    blob.Store
	detector Detector
	renderer Renderer
}

// NewExecutor returns an executor. detector and renderer may be nil when
// every planned operation is a straight copy.
func NewExecutor(store blob.Store, detector Detector, renderer Renderer) *Executor {
	return &Executor{store: store, detector: detector, renderer: renderer}
}

// OutputPath returns where an operation on rel writes.
func OutputPath(rel string, t plan.Target) string {
	if t == plan.TargetDetect {
		return blob.DetectPath(rel)
	}
	return rel
}

// InputPath returns where an operation on rel reads.
func InputPath(rel string, s plan.Source) string {
	if s == plan.SourceBackup {
		return blob.BackupPath(rel)
	}
	return rel
}

// Execute runs ops in order for one file. The backup must already exist
// when any op reads from it. Outputs written before a failure are left in
// place.
func (e *Executor) Execute(ctx context.Context, file models.FileDescriptor, ops []plan.Operation) (Outcome, error) {
	out := Outcome{OutputPaths: make(map[string]string, len(ops))}
	// Detections are computed once per input and reused by later ops.
	cache := make(map[plan.Source][]PlateRegion)

	for _, op := range ops {
		in := InputPath(file.RelativePath, op.Input)
		dst := OutputPath(file.RelativePath, op.Output)

		data, err := e.store.Read(ctx, in)
		if err != nil {
			return out, &FileError{Kind: StorageFailure, Path: in, Err: err}
		}

		if !op.SkipDetection {
			var regions []PlateRegion
			if op.Masking {
				var ok bool
				if regions, ok = cache[op.Input]; !ok {
					if e.detector == nil {
						return out, &FileError{Kind: DetectorFailure, Path: in, Err: errors.New("no detector configured")}
					}
					regions, err = e.detector.Detect(ctx, data)
					if err != nil {
						return out, &FileError{Kind: DetectorFailure, Path: in, Err: err}
					}
					cache[op.Input] = regions
				}
				n := len(regions)
				out.Detections = &n
			}
			if e.renderer == nil {
				return out, &FileError{Kind: RendererFailure, Path: in, Err: errors.New("no renderer configured")}
			}
			data, err = e.renderer.Render(ctx, data, regions, op.Masking, op.Banner)
			if err != nil {
				return out, &FileError{Kind: RendererFailure, Path: in, Err: err}
			}
		}

		if err := e.store.Write(ctx, dst, data); err != nil {
			return out, &FileError{Kind: StorageFailure, Path: dst, Err: err}
		}
		out.OutputPaths[string(op.Output)] = dst
	}

	if err := e.verify(ctx, out.OutputPaths); err != nil {
		return out, err
	}
	return out, nil
}

// verify re-stats every written output and fails listing each path that
// is missing or empty.
func (e *Executor) verify(ctx context.Context, outputs map[string]string) error {
	var missing []string
	for _, target := range []plan.Target{plan.TargetDetect, plan.TargetOriginal} {
		p, ok := outputs[string(target)]
		if !ok {
			continue
		}
		size, err := e.store.Size(ctx, p)
		if err != nil || size <= 0 {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &FileError{
			Kind: OutputVerificationFailed,
			Path: strings.Join(missing, ","),
			Err:  fmt.Errorf("%d output(s) missing or empty", len(missing)),
		}
	}
	return nil
}
