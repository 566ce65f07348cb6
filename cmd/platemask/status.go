package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/tracking"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		date       string
		daysAgo    int
		failed     bool
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a date's tracking status",
		Long:  "Reads a date's tracking file and shows status counts, per-car progress and, with --failed, every file in error. Use --watch for auto-refresh.",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(date, daysAgo, time.Now())
			if err != nil {
				return err
			}
			return runStatus(cmd, configPath, d, failed, watch)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to platemask config file")
	addDateFlags(cmd, &date, &daysAgo)
	cmd.Flags().BoolVar(&failed, "failed", false, "list files in error with their messages")
	cmd.Flags().BoolVar(&watch, "watch", false, "auto-refresh every 5 seconds")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string, date time.Time, failed, watch bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	clearScreen := watch && term.IsTerminal(int(os.Stdout.Fd()))

	for {
		f, err := tracking.Load(cfg.TrackingDir(), date)
		if err != nil {
			return err
		}
		if clearScreen {
			fmt.Fprint(out, "\033[2J\033[H")
		}
		if f == nil {
			fmt.Fprintf(out, "No tracking file for %s (%s)\n", date.Format("2006-01-02"), tracking.PathFor(cfg.TrackingDir(), date))
		} else {
			fmt.Fprint(out, formatStatus(f, failed))
		}
		if !watch {
			return nil
		}
		time.Sleep(5 * time.Second)
	}
}

// formatStatus renders a tracking file for the terminal.
func formatStatus(f *tracking.File, showFailed bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tracking %s\n", f.Date)
	if f.LastProcessedTime != nil {
		fmt.Fprintf(&b, "  Last run:  %s at %s\n", f.LastRunID, f.LastProcessedTime.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "  Files:     %d\n", len(f.Processed))
	fmt.Fprintf(&b, "  Statuses:  %s\n\n", formatCounts(f.Counts()))

	type carRow struct {
		id     string
		counts map[tracking.Status]int
		files  int
	}
	rows := make(map[string]*carRow)
	for _, r := range f.Filter() {
		row, ok := rows[r.CarID]
		if !ok {
			row = &carRow{id: r.CarID, counts: make(map[tracking.Status]int)}
			rows[r.CarID] = row
		}
		row.files++
		row.counts[r.Status]++
	}
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CAR\tFILES\tSTATUS\tDONE AT")
	for _, id := range ids {
		row := rows[id]
		doneAt := "-"
		if m := f.Cars[id]; m != nil && m.Status == tracking.StatusDone && m.DoneAt != nil {
			doneAt = m.DoneAt.Format("15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", id, row.files, formatCounts(row.counts), doneAt)
	}
	tw.Flush()

	if showFailed {
		errs := f.Filter(tracking.StatusError)
		fmt.Fprintf(&b, "\nFailed files: %d\n", len(errs))
		for _, r := range errs {
			fmt.Fprintf(&b, "  %d %s: %s\n", r.FileID, r.Path, r.Error)
		}
	}
	return b.String()
}
