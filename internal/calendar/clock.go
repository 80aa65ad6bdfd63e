// Package calendar owns every civil-day computation: turning instants into day-keys in the configured
// time zone and laying those keys out as week and month views.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DayLayout is the day-key format.
	DayLayout = "2006-01-02"
	// MonthLayout is the month-key format.
	MonthLayout = "2006-01"
	// DefaultZone is the civil zone used when none is configured.
	DefaultZone = "Europe/Paris"

	// neutralHour keeps date arithmetic away from midnight so DST shifts never move a date.
	neutralHour = 12
)

// ErrInvalidDayKey is returned when a string is not a YYYY-MM-DD day-key.
var ErrInvalidDayKey = errors.New("invalid day key")

// EpochFloor is the first instant the product has data for (1 January 2025, noon UTC).
var EpochFloor = time.Date(2025, time.January, 1, neutralHour, 0, 0, 0, time.UTC)

// Clock formats instants as day-keys in a fixed civil zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock constructs a Clock rendering in loc.
func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// LoadClock resolves the named IANA zone and returns a Clock for it.
func LoadClock(zone string) (*Clock, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return NewClock(loc), nil
}

// WithNow returns a copy of the clock reading the current instant from now.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: now}
}

// Location returns the civil zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current instant rendered in the civil zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// DayKey renders t as a day-key in the civil zone.
func (c *Clock) DayKey(t time.Time) string {
	return t.In(c.loc).Format(DayLayout)
}

// Today returns the current day-key.
func (c *Clock) Today() string {
	return c.DayKey(c.now())
}

// Weekday returns the civil weekday of t with Monday as 0 and Sunday as 6.
func (c *Clock) Weekday(t time.Time) int {
	return mondayIndex(t.In(c.loc).Weekday())
}

// CivilDate returns t's civil calendar date pinned at noon UTC.
func (c *Clock) CivilDate(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), neutralHour, 0, 0, 0, time.UTC)
}

// MonthKey truncates a day-key to its YYYY-MM month-key.
func MonthKey(day string) string {
	if len(day) < len(MonthLayout) {
		return day
	}
	return day[:len(MonthLayout)]
}

// ParseDayKey parses a day-key into its calendar date pinned at noon UTC.
func ParseDayKey(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDayKey, day)
	}
	return t.Add(neutralHour * time.Hour), nil
}

// DaysBetween returns the number of whole calendar days from a to b. Both must be noon-UTC dates.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Round(time.Hour).Hours()) / 24
}

func mondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}
