// Package plan decides what to do to each image: the role a branch
// number plays inside its vehicle group, and the ordered operations a
// run mode expands to for that role.
package plan

import (
	"fmt"
	"strings"
)

// Role is the part an image plays inside its vehicle group.
type Role string

const (
	RoleFirst         Role = "first"
	RoleSkipDetection Role = "skip_detection"
	RoleRegular       Role = "regular"
)

// Mode is the run mode chosen once per invocation.
type Mode string

const (
	ModeNormal       Mode = "normal"
	ModeForce        Mode = "force"
	ModeForceOverlay Mode = "force_overlay"
)

// Source is where an operation reads its input bytes.
type Source string

const (
	SourceCurrent Source = "current"
	SourceBackup  Source = "backup"
)

// Target is where an operation writes its output.
type Target string

const (
	TargetDetect   Target = "detect"
	TargetOriginal Target = "original"
)

// Operation is one unit of work for one file.
type Operation struct {
	Input         Source
	Output        Target
	Masking       bool
	Banner        bool
	SkipDetection bool
}

func (o Operation) String() string {
	var parts []string
	if o.SkipDetection {
		parts = append(parts, "copy")
	}
	if o.Masking {
		parts = append(parts, "mask")
	}
	if o.Banner {
		parts = append(parts, "banner")
	}
	if len(parts) == 0 {
		parts = append(parts, "noop")
	}
	return fmt.Sprintf("%s->%s(%s)", o.Input, o.Output, strings.Join(parts, "+"))
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ReplaceAll(s, "-", "_")) {
	case ModeNormal:
		return ModeNormal, nil
	case ModeForce:
		return ModeForce, nil
	case ModeForceOverlay:
		return ModeForceOverlay, nil
	}
	return "", fmt.Errorf("plan: unknown mode %q", s)
}

// ModeFromFlags maps the CLI flags to a Mode. Force overlay wins when both
// flags are set.
func ModeFromFlags(force, forceOverlay bool) Mode {
	switch {
	case forceOverlay:
		return ModeForceOverlay
	case force:
		return ModeForce
	default:
		return ModeNormal
	}
}

// SkipsCompleted reports whether files already verified or done are left
// alone under this mode.
func (m Mode) SkipsCompleted() bool {
	return m == ModeNormal
}

// Classifier maps branch numbers to roles.
type Classifier struct {
	skip map[int]bool
}

// NewClassifier returns a classifier that treats the given branches as
// SkipDetection. Branch 1 is always First.
func NewClassifier(skipDetection []int) *Classifier {
	c := &Classifier{skip: make(map[int]bool, len(skipDetection))}
	for _, b := range skipDetection {
		c.skip[b] = true
	}
	return c
}

// Classify returns the role for a branch number; nil means absent.
func (c *Classifier) Classify(branch *int) Role {
	switch {
	case branch == nil:
		return RoleRegular
	case *branch == 1:
		return RoleFirst
	case c.skip[*branch]:
		return RoleSkipDetection
	default:
		return RoleRegular
	}
}

// Resolver expands (role, mode) into operations.
type Resolver struct {
	// NormalFirstOriginal is the input of the banner-only overwrite of a
	// First original in Normal mode.
	NormalFirstOriginal Source
}

// NewResolver returns a resolver; an empty source defaults to the backup.
func NewResolver(normalFirstOriginal Source) Resolver {
	if normalFirstOriginal == "" {
		normalFirstOriginal = SourceBackup
	}
	return Resolver{NormalFirstOriginal: normalFirstOriginal}
}

var (
	detectMasked = Operation{Input: SourceBackup, Output: TargetDetect, Masking: true}
	detectFirst  = Operation{Input: SourceBackup, Output: TargetDetect, Masking: true, Banner: true}
	detectCopy   = Operation{Input: SourceBackup, Output: TargetDetect, SkipDetection: true}
)

// Resolve returns the operations for one file, in execution order. It is
// pure. It panics if it would emit a banner for a role other than First,
// or when given an unknown role or mode.
func (r Resolver) Resolve(role Role, mode Mode) []Operation {
	ops := r.table(role, mode)
	for _, op := range ops {
		if op.Banner && role != RoleFirst {
			panic(fmt.Sprintf("plan: banner operation %s emitted for role %s in mode %s", op, role, mode))
		}
	}
	return ops
}

func (r Resolver) table(role Role, mode Mode) []Operation {
	switch mode {
	case ModeNormal:
		switch role {
		case RoleFirst:
			return []Operation{detectFirst, {Input: r.NormalFirstOriginal, Output: TargetOriginal, Banner: true}}
		case RoleRegular:
			return []Operation{detectMasked}
		case RoleSkipDetection:
			return []Operation{detectCopy}
		}
	case ModeForce:
		switch role {
		case RoleFirst:
			return []Operation{detectFirst, {Input: SourceCurrent, Output: TargetOriginal, Banner: true}}
		case RoleRegular:
			return []Operation{detectMasked}
		case RoleSkipDetection:
			// Still a straight copy: these branches never reach the detector, forced or not.
			return []Operation{detectCopy}
		}
	case ModeForceOverlay:
		switch role {
		case RoleFirst:
			return []Operation{{Input: SourceCurrent, Output: TargetOriginal, Banner: true}}
		case RoleRegular, RoleSkipDetection:
			return nil
		}
	default:
		panic(fmt.Sprintf("plan: unknown mode %q", mode))
	}
	panic(fmt.Sprintf("plan: unknown role %q", role))
}
