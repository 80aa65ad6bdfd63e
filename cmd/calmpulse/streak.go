package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/calmpulse/internal/streak"
)

// NewStreakCommand creates the streak command
func NewStreakCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "streak DAY...",
		Short: "Compute streak statistics for a set of completed days",
		Long: `Compute the current and longest streak for the given day-keys (YYYY-MM-DD).

Duplicates are counted once and malformed keys are ignored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary := streak.Summarize(args)
			if summary.Total == 0 {
				return fmt.Errorf("no valid day-keys in %d argument(s)", len(args))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "current: %d\n", summary.Current)
			fmt.Fprintf(out, "longest: %d\n", summary.Longest)
			fmt.Fprintf(out, "total:   %d\n", summary.Total)
			fmt.Fprintf(out, "last:    %s\n", summary.LastDay)
			return nil
		},
	}
}
