package main

import (
	"github.com/spf13/cobra"
)

// newRootCommand assembles the calmpulse admin CLI.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calmpulse",
		Short: "Operate and inspect the calmpulse meditation tracker",
		Long: `calmpulse bundles small operator tools around the meditation tracker.

Examples:
  # Streak statistics for a set of completed days
  calmpulse streak 2025-03-08 2025-03-09 2025-03-10

  # Month grid with completed days marked
  calmpulse month 2025 3 --days 2025-03-09,2025-03-10

  # Write fake completions into the local database
  calmpulse seed --count 20 --interval-min 1s --interval-max 3s`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.AddCommand(
		NewStreakCommand(),
		NewMonthCommand(),
		NewSeedCommand(openSeedTarget),
		NewVersionCommand(),
	)
	return cmd
}
