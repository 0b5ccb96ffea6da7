package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "canopy",
	Short: "Dependency-aware parallel mission runner",
	Long: `Canopy fans a mission objective out across workers, schedules the
resulting tasks in dependency-ordered waves, and runs each wave in
parallel under resource admission (slots, call quota, memory budget).

Missions are described in YAML: an objective, the workers it spans,
their resource declarations, and dependencies between them. Results
are synthesized by a coordination task and persisted to SQLite.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reasonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
