package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecsol/cars-numberplate-inference/internal/notify"
	"github.com/ecsol/cars-numberplate-inference/internal/orchestrator"
	"github.com/ecsol/cars-numberplate-inference/internal/plan"
	"github.com/spf13/cobra"
)

type runFlags struct {
	configPath   string
	date         string
	daysAgo      int
	path         string
	limit        int
	force        bool
	forceOverlay bool
	workers      int
	incremental  bool
	noNotify     bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one date's photos",
		Long: "Lists the date's uploaded photos from the catalog, backs up every original once, writes masked " +
			"derivatives and bannered first images, and records progress in the date's tracking file. " +
			"Exits non-zero when the run lock is held, the catalog is unavailable, or any file ends in error.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "path to platemask config file")
	addDateFlags(cmd, &f.date, &f.daysAgo)
	cmd.Flags().StringVar(&f.path, "path", "", "only process files whose path starts with this prefix")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "process at most this many files (0 = no limit)")
	cmd.Flags().BoolVar(&f.force, "force", false, "reprocess completed files from their backups")
	cmd.Flags().BoolVar(&f.forceOverlay, "force-overlay", false, "only re-apply the banner to first images (wins over --force)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "cars processed in parallel (default: config workers)")
	cmd.Flags().BoolVar(&f.incremental, "incremental", false, "only list rows touched since the previous run")
	cmd.Flags().BoolVar(&f.noNotify, "no-notify", false, "skip run summary notifications")
	return cmd
}

func runRun(cmd *cobra.Command, f runFlags) error {
	date, err := resolveDate(f.date, f.daysAgo, time.Now())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	workers := f.workers
	if workers <= 0 {
		workers = cfg.Workers
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := buildApp(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	opts := orchestrator.Options{
		Date:        date,
		Mode:        plan.ModeFromFlags(f.force, f.forceOverlay),
		Limit:       f.limit,
		PathFilter:  f.path,
		Workers:     workers,
		Incremental: f.incremental,
	}
	return runOnce(ctx, cmd, a, opts, !f.noNotify)
}

// runOnce performs one orchestrator run, prints its summary and notifies.
func runOnce(ctx context.Context, cmd *cobra.Command, a *app, opts orchestrator.Options, send bool) error {
	out := cmd.OutOrStdout()
	sum, err := a.orch.Run(ctx, opts)
	switch {
	case orchestrator.IsLocked(err):
		return fmt.Errorf("another run is in progress: %w", err)
	case orchestrator.IsCatalogUnavailable(err):
		return fmt.Errorf("catalog unavailable, nothing was processed: %w", err)
	case err != nil && sum == nil:
		return err
	}

	printSummary(out, sum)
	if send {
		notify.Send(ctx, notify.FromConfig(a.cfg.Notify), notify.FromSummary(sum))
	}
	if err != nil {
		return err
	}
	if !sum.OK() {
		return fmt.Errorf("run %s: %d file(s) failed", sum.RunID, sum.Failed)
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
