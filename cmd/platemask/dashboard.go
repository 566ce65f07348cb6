package main

import (
	"github.com/ecsol/cars-numberplate-inference/internal/dashboard"
	"github.com/spf13/cobra"
)

func newDashboardCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Start the read-only web dashboard",
		Long:  "Serves a read-only JSON view of the tracking files, with a server-sent event stream per date for live progress.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to platemask config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default: dashboard.port)")
	return cmd
}

func runDashboard(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Dashboard.Port
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	return dashboard.Start(ctx, dashboard.StartOpts{
		TrackingDir: cfg.TrackingDir(),
		Port:        port,
		Out:         cmd.OutOrStdout(),
	})
}
