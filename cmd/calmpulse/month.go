package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"example.com/calmpulse/internal/calendar"
	"example.com/calmpulse/internal/streak"
)

var weekdayHeader = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// NewMonthCommand creates the month command
func NewMonthCommand() *cobra.Command {
	var days []string

	cmd := &cobra.Command{
		Use:   "month YEAR MONTH",
		Short: "Print the calendar grid of a month",
		Long: `Print the Monday-first calendar grid of a month (MONTH is 1-12).

Days passed with --days are marked with an asterisk.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid year %q: %w", args[0], err)
			}
			month, err := strconv.Atoi(args[1])
			if err != nil || month < 1 || month > 12 {
				return fmt.Errorf("invalid month %q: expected 1-12", args[1])
			}

			filled := make(map[string]bool)
			for _, day := range streak.Normalize(days) {
				filled[day] = true
			}

			fmt.Fprint(cmd.OutOrStdout(), renderMonth(calendar.Month(year, month-1), filled))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&days, "days", "d", nil, "Completed day-keys to mark (comma separated)")
	return cmd
}

// renderMonth lays the grid out as text, one week per line.
func renderMonth(grid calendar.MonthGrid, filled map[string]bool) string {
	var b strings.Builder
	b.WriteString(grid.Label())
	b.WriteByte('\n')

	header := make([]string, len(weekdayHeader))
	for i, name := range weekdayHeader {
		header[i] = name + " "
	}
	writeRow(&b, header)

	cells := make([]string, 0, 7)
	for i := 0; i < grid.LeadingBlanks; i++ {
		cells = append(cells, "   ")
	}
	for i, day := range grid.Days {
		mark := " "
		if filled[day] {
			mark = "*"
		}
		cells = append(cells, fmt.Sprintf("%2d%s", i+1, mark))
		if len(cells) == 7 {
			writeRow(&b, cells)
			cells = cells[:0]
		}
	}
	if len(cells) > 0 {
		writeRow(&b, cells)
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString(strings.TrimRight(strings.Join(cells, " "), " "))
	b.WriteByte('\n')
}
