package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/blob"
	"github.com/ecsol/cars-numberplate-inference/internal/restore"
	"github.com/ecsol/cars-numberplate-inference/internal/tracking"
	"github.com/spf13/cobra"
)

func newRestoreCmd() *cobra.Command {
	var (
		configPath string
		date       string
		daysAgo    int
		status     string
		carID      string
		limit      int
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore originals from their golden copies",
		Long: "Reads a date's tracking file and copies each selected file's backup over its original. " +
			"Backups are never modified. Exits non-zero when any selected file could not be restored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusList(status)
			if err != nil {
				return err
			}
			d, err := resolveDate(date, daysAgo, time.Now())
			if err != nil {
				return err
			}
			return runRestore(cmd, configPath, restore.Options{
				Date:     d,
				Statuses: statuses,
				CarID:    carID,
				Limit:    limit,
				DryRun:   dryRun,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to platemask config file")
	addDateFlags(cmd, &date, &daysAgo)
	cmd.Flags().StringVar(&status, "status", "all", "comma separated statuses to restore, or all")
	cmd.Flags().StringVar(&carID, "car", "", "only restore files of this car")
	cmd.Flags().IntVar(&limit, "limit", 0, "restore at most this many files (0 = no limit)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be restored without writing")
	return cmd
}

// parseStatusList accepts "all" or a comma separated list of statuses.
func parseStatusList(raw string) ([]tracking.Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "all" {
		return nil, nil
	}
	var out []tracking.Status
	for _, part := range strings.Split(raw, ",") {
		s, ok := tracking.ParseStatus(strings.TrimSpace(part))
		if !ok {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		out = append(out, s)
	}
	return out, nil
}

func runRestore(cmd *cobra.Command, configPath string, opts restore.Options) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	store, err := blob.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	res, err := restore.New(store, cfg.TrackingDir(), out).Run(ctx, opts)
	if err != nil {
		return err
	}

	verb := "Restored"
	if opts.DryRun {
		verb = "Would restore"
	}
	n := res.Restored
	if opts.DryRun {
		n = res.Candidates - len(res.Failures)
	}
	fmt.Fprintf(out, "\n%s %d of %d file(s)\n", verb, n, res.Candidates)
	for _, f := range res.Failures {
		fmt.Fprintf(out, "  %s %d %s: %v\n", colorStatus(tracking.StatusError), f.FileID, f.Path, f.Err)
	}
	if len(res.Failures) > 0 {
		return fmt.Errorf("%d file(s) could not be restored", len(res.Failures))
	}
	return nil
}
