package progress

import (
	"time"

	"example.com/calmpulse/internal/calendar"
)

// DayCell is one square of a week strip or month grid.
type DayCell struct {
	Day    string `json:"day"`
	Filled bool   `json:"filled"`
	Today  bool   `json:"today"`
}

// WeekView is the Monday-first strip of the current week.
type WeekView struct {
	Days []DayCell `json:"days"`
}

// MonthView is a navigable month grid.
type MonthView struct {
	Year          int       `json:"year"`
	Month         int       `json:"month"`
	Label         string    `json:"label"`
	LeadingBlanks int       `json:"leading_blanks"`
	Days          []DayCell `json:"days"`
	Filled        int       `json:"filled"`
	CanPrev       bool      `json:"can_prev"`
	CanNext       bool      `json:"can_next"`
}

// Views renders day-sets into week and month layouts for a civil clock.
type Views struct {
	clock *calendar.Clock
	floor time.Time
}

// NewViews constructs a Views bounded below by floor.
func NewViews(clock *calendar.Clock, floor time.Time) Views {
	if floor.IsZero() {
		floor = calendar.EpochFloor
	}
	return Views{clock: clock, floor: floor}
}

// Week lays out the current week with the completed days filled.
func (v Views) Week(days []string) WeekView {
	filled := toSet(days)
	today := v.clock.Today()

	keys := v.clock.WeekDays(v.clock.Now())
	cells := make([]DayCell, len(keys))
	for i, key := range keys {
		_, done := filled[key]
		cells[i] = DayCell{Day: key, Filled: done, Today: key == today}
	}
	return WeekView{Days: cells}
}

// Month lays out the month at (year, month0), clamped between the floor month and the current month.
func (v Views) Month(days []string, year, month0 int) MonthView {
	nav := v.navigator()
	year, month0 = nav.Clamp(year, month0)
	grid := calendar.Month(year, month0)

	filled := toSet(days)
	today := v.clock.Today()

	view := MonthView{
		Year:          grid.Year,
		Month:         grid.Month0 + 1,
		Label:         grid.Label(),
		LeadingBlanks: grid.LeadingBlanks,
		Days:          make([]DayCell, len(grid.Days)),
		CanPrev:       nav.CanPrev(grid.Year, grid.Month0),
		CanNext:       nav.CanNext(grid.Year, grid.Month0),
	}
	for i, key := range grid.Days {
		_, done := filled[key]
		if done {
			view.Filled++
		}
		view.Days[i] = DayCell{Day: key, Filled: done, Today: key == today}
	}
	return view
}

// CurrentMonth returns the civil (year, month0) of now.
func (v Views) CurrentMonth() (int, int) {
	now := v.clock.CivilDate(v.clock.Now())
	return now.Year(), int(now.Month()) - 1
}

func (v Views) navigator() calendar.Navigator {
	return calendar.Navigator{Floor: v.floor, Today: v.clock.CivilDate(v.clock.Now())}
}

func toSet(days []string) map[string]struct{} {
	set := make(map[string]struct{}, len(days))
	for _, day := range days {
		set[day] = struct{}{}
	}
	return set
}
