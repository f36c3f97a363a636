// Package calendar holds the explicit day and week boundary policy used by
// streaks, weekly challenges, daily missions and the weekly ranking.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

const dayKeyLayout = "2006-01-02"

// Policy fixes the default timezone and the first day of the week.
type Policy struct {
	Location  *time.Location
	WeekStart time.Weekday
}

// DefaultPolicy is UTC with Monday-start weeks.
func DefaultPolicy() Policy {
	return Policy{Location: time.UTC, WeekStart: time.Monday}
}

// NewPolicy builds a policy from an IANA zone name and a weekday name.
func NewPolicy(tz, weekStart string) (Policy, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Policy{}, fmt.Errorf("load location %q: %w", tz, err)
	}
	wd, err := ParseWeekday(weekStart)
	if err != nil {
		return Policy{}, err
	}
	return Policy{Location: loc, WeekStart: wd}, nil
}

// ParseWeekday parses an English weekday name, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday: %q", s)
}

// loc returns the policy location, falling back to UTC.
func (p Policy) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// UserLocation resolves a per-user zone name, falling back to the policy location.
func (p Policy) UserLocation(tz string) *time.Location {
	if tz == "" {
		return p.loc()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return p.loc()
	}
	return loc
}

// Day returns the civil date of t in loc, encoded as midnight UTC.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats the civil date of t in loc as "2006-01-02".
func DayKey(t time.Time, loc *time.Location) string {
	return Day(t, loc).Format(dayKeyLayout)
}

// ParseDayKey parses a "2006-01-02" key into a civil date.
func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(dayKeyLayout, key, time.UTC)
}

// DaysBetween returns the number of calendar days from civil date a to b.
// Both arguments must come from Day.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// StartOfDay returns midnight of t's civil day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay returns the instant t's civil day ends in loc: the following midnight.
// Day intervals are half-open, so EndOfDay itself belongs to the next day.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1)
}

// weekStartDate returns the civil date the week containing civil date d starts on.
func (p Policy) weekStartDate(d time.Time) time.Time {
	back := (int(d.Weekday()) - int(p.WeekStart) + 7) % 7
	return d.AddDate(0, 0, -back)
}

// WeekKey returns the "YYYY-Www" identifier of the week containing t.
// The key is the ISO year and week of the week's fourth day, which equals the
// ISO week for Monday-start policies.
func (p Policy) WeekKey(t time.Time) string {
	start := p.weekStartDate(Day(t, p.loc()))
	year, week := start.AddDate(0, 0, 3).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// ParseWeekKey splits a "YYYY-Www" key.
func ParseWeekKey(key string) (year, week int, err error) {
	if _, err := fmt.Sscanf(key, "%4d-W%2d", &year, &week); err != nil {
		return 0, 0, fmt.Errorf("invalid week key %q: %w", key, err)
	}
	if week < 1 || week > 53 {
		return 0, 0, fmt.Errorf("invalid week key %q: week out of range", key)
	}
	return year, week, nil
}

// isoMonday returns the Monday of ISO week (year, week) as a civil date.
func isoMonday(year, week int) time.Time {
	// Jan 4th is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset+(week-1)*7)
}

// WeekRange returns the half-open interval [start, end) of the week identified
// by key, in the policy location.
func (p Policy) WeekRange(key string) (time.Time, time.Time, error) {
	year, week, err := ParseWeekKey(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	monday := isoMonday(year, week)
	if y, w := monday.ISOWeek(); y != year || w != week {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid week key %q: no such week", key)
	}
	// Exactly one day in [monday-3, monday+3] falls on WeekStart.
	start := monday.AddDate(0, 0, -3)
	for start.Weekday() != p.WeekStart {
		start = start.AddDate(0, 0, 1)
	}
	loc := p.loc()
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, 7), nil
}

// CurrentWeek returns the key and bounds of the week containing now.
func (p Policy) CurrentWeek(now time.Time) (string, time.Time, time.Time) {
	key := p.WeekKey(now)
	start, end, _ := p.WeekRange(key)
	return key, start, end
}

// NextWeekKey returns the key of the week after the one containing now.
func (p Policy) NextWeekKey(now time.Time) string {
	_, _, end := p.CurrentWeek(now)
	return p.WeekKey(end)
}
