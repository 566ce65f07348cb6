package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ecsol/cars-numberplate-inference/internal/orchestrator"
	"github.com/ecsol/cars-numberplate-inference/internal/tracking"
	"github.com/fatih/color"
)

var statusColors = map[tracking.Status]*color.Color{
	tracking.StatusPending:    color.New(color.FgWhite),
	tracking.StatusProcessing: color.New(color.FgYellow),
	tracking.StatusVerified:   color.New(color.FgCyan),
	tracking.StatusDone:       color.New(color.FgHiGreen),
	tracking.StatusError:      color.New(color.FgRed),
}

// colorStatus renders s in its status colour.
func colorStatus(s tracking.Status) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(string(s))
	}
	return string(s)
}

// formatCounts renders counts in lifecycle order, omitting zeros.
func formatCounts(counts map[tracking.Status]int) string {
	var parts []string
	for _, s := range tracking.Statuses {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", colorStatus(s), n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

func printSummary(out io.Writer, sum *orchestrator.Summary) {
	fmt.Fprintf(out, "\nRun %s (%s, %s)\n", sum.RunID, sum.Date.Format("2006-01-02"), sum.Mode)
	fmt.Fprintf(out, "  Listed:     %d\n", sum.Listed)
	fmt.Fprintf(out, "  Processed:  %d\n", sum.Processed)
	fmt.Fprintf(out, "  Skipped:    %d\n", sum.Skipped)
	fmt.Fprintf(out, "  Verified:   %d\n", sum.Verified)
	failed := fmt.Sprint(sum.Failed)
	if sum.Failed > 0 {
		failed = color.New(color.FgRed, color.Bold).Sprint(failed)
	}
	fmt.Fprintf(out, "  Failed:     %s\n", failed)
	fmt.Fprintf(out, "  Cars done:  %d\n", len(sum.CarsDone))
	fmt.Fprintf(out, "  Tracking:   %s\n", formatCounts(sum.Counts))
	if sum.TrackingPath != "" {
		fmt.Fprintf(out, "  File:       %s\n", sum.TrackingPath)
	}
	for _, r := range sum.Failures {
		fmt.Fprintf(out, "    %s %d %s: %s\n", colorStatus(tracking.StatusError), r.FileID, r.Path, r.Error)
	}
}
