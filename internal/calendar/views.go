package calendar

import "time"

// WeekDays returns the seven day-keys, Monday first, of the ISO week containing today's civil date.
func (c *Clock) WeekDays(today time.Time) []string {
	date := c.CivilDate(today)
	monday := date.AddDate(0, 0, -mondayIndex(date.Weekday()))

	days := make([]string, 7)
	for i := range days {
		days[i] = monday.AddDate(0, 0, i).Format(DayLayout)
	}
	return days
}

// MonthGrid is the calendar-grid layout of one month.
type MonthGrid struct {
	Year   int
	Month0 int
	// Days lists every day-key of the month in order.
	Days []string
	// LeadingBlanks is the number of empty cells before the 1st so it lands under its weekday column.
	LeadingBlanks int
}

// Month builds the grid for the given year and zero-based month. Out-of-range months are normalised.
func Month(year, month0 int) MonthGrid {
	first := time.Date(year, time.Month(month0+1), 1, neutralHour, 0, 0, 0, time.UTC)
	// Day 0 of the following month is the last day of this one.
	count := time.Date(first.Year(), first.Month()+1, 0, neutralHour, 0, 0, 0, time.UTC).Day()

	days := make([]string, count)
	for i := range days {
		days[i] = first.AddDate(0, 0, i).Format(DayLayout)
	}

	return MonthGrid{
		Year:          first.Year(),
		Month0:        int(first.Month()) - 1,
		Days:          days,
		LeadingBlanks: mondayIndex(first.Weekday()),
	}
}

// Label renders the grid title, e.g. "February 2028".
func (g MonthGrid) Label() string {
	return time.Date(g.Year, time.Month(g.Month0+1), 1, neutralHour, 0, 0, 0, time.UTC).Format("January 2006")
}

// Navigator bounds month navigation between the data floor and the current month.
type Navigator struct {
	Floor time.Time
	Today time.Time
}

// CanPrev reports whether a month before (year, month0) may be shown.
func (n Navigator) CanPrev(year, month0 int) bool {
	cursor := time.Date(year, time.Month(month0+1), 1, neutralHour, 0, 0, 0, time.UTC)
	return cursor.After(n.Floor)
}

// CanNext reports whether a month after (year, month0) may be shown.
func (n Navigator) CanNext(year, month0 int) bool {
	return monthIndex(year, month0) < monthIndex(n.Today.Year(), int(n.Today.Month())-1)
}

// Prev returns the month before (year, month0).
func (n Navigator) Prev(year, month0 int) (int, int) {
	return shiftMonth(year, month0, -1)
}

// Next returns the month after (year, month0).
func (n Navigator) Next(year, month0 int) (int, int) {
	return shiftMonth(year, month0, 1)
}

// Clamp pulls (year, month0) back inside [floor month, current month].
func (n Navigator) Clamp(year, month0 int) (int, int) {
	idx := monthIndex(year, month0)
	if lo := monthIndex(n.Floor.Year(), int(n.Floor.Month())-1); idx < lo {
		idx = lo
	}
	if hi := monthIndex(n.Today.Year(), int(n.Today.Month())-1); idx > hi {
		idx = hi
	}
	return idx / 12, idx % 12
}

func monthIndex(year, month0 int) int {
	return year*12 + month0
}

func shiftMonth(year, month0, delta int) (int, int) {
	t := time.Date(year, time.Month(month0+1+delta), 1, neutralHour, 0, 0, 0, time.UTC)
	return t.Year(), int(t.Month()) - 1
}
