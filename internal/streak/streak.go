// Package streak aggregates completed day-keys into streak statistics.
package streak

import (
	"sort"
	"time"

	"example.com/calmpulse/internal/calendar"
)

// Stats holds the trailing and best runs of consecutive days.
type Stats struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// Summary extends Stats with totals used by the progress view.
type Summary struct {
	Stats
	Total   int    `json:"total"`
	LastDay string `json:"last_day,omitempty"`
}

// Normalize returns the valid day-keys of days, de-duplicated and sorted oldest first.
// Malformed keys are dropped.
func Normalize(days []string) []string {
	seen := make(map[string]struct{}, len(days))
	out := make([]string, 0, len(days))
	for _, day := range days {
		if _, dup := seen[day]; dup {
			continue
		}
		if _, err := calendar.ParseDayKey(day); err != nil {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	// YYYY-MM-DD sorts lexically in calendar order.
	sort.Strings(out)
	return out
}

// Compute returns the current (trailing) and longest streaks for an unordered set of day-keys.
// The current streak does not have to end today.
func Compute(days []string) Stats {
	dates := parseSorted(Normalize(days))
	if len(dates) == 0 {
		return Stats{}
	}

	current := 1
	for i := len(dates) - 2; i >= 0; i-- {
		if calendar.DaysBetween(dates[i], dates[i+1]) != 1 {
			break
		}
		current++
	}

	longest, run := 1, 1
	for i := 1; i < len(dates); i++ {
		if calendar.DaysBetween(dates[i-1], dates[i]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	return Stats{Current: current, Longest: longest}
}

// Summarize computes Stats together with the total number of distinct days and the latest day.
func Summarize(days []string) Summary {
	unique := Normalize(days)
	summary := Summary{Stats: Compute(unique), Total: len(unique)}
	if len(unique) > 0 {
		summary.LastDay = unique[len(unique)-1]
	}
	return summary
}

func parseSorted(days []string) []time.Time {
	out := make([]time.Time, 0, len(days))
	for _, day := range days {
		t, err := calendar.ParseDayKey(day)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}
