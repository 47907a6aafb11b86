package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// SetVersion sets the version string reported by the version command.
// Injected from main via ldflags.
func SetVersion(v string) {
	version = v
}

var configFile string

var rootCmd = &cobra.Command{
	Use:   "windscout",
	Short: "windscout — a wind-farm analysis assistant",
	Long: `windscout answers wind-farm questions and runs site feasibility studies
through a staged workflow (survey, layout, simulation, report) over
stateless compute units.

By default all state lives in a local file store and every unit runs
in-process, so the binary works with no configuration. Point
store.backend at postgres for durable thought traces, the background
ask queue, the activity feed, and analytics.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to windscout config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(thoughtsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(configCmd)
}
