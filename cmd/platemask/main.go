package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "platemask.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platemask",
		Short: "Platemask: idempotent number plate masking for vehicle photos",
		Long: "Platemask lists the day's uploaded vehicle photos, keeps a write-once golden copy of every original, " +
			"and writes plate-masked derivatives and bannered originals, tracking every file in a per-date JSON file.",
		SilenceUsage: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDashboardCmd())
	cmd.AddCommand(newDoctorCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "platemask %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
