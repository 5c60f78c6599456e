// Package deadline does business-day arithmetic for request response windows.
package deadline

import (
	"time"
)

const dateLayout = "2006-01-02"

// Calendar knows which days are working days. Weekends are never working days;
// holidays are supplied by the caller.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// NewCalendar builds a calendar in loc. Holidays are YYYY-MM-DD strings; unparsable
// entries are ignored here and should be rejected when the calendar is loaded.
func NewCalendar(loc *time.Location, holidays ...string) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		if d, err := time.ParseInLocation(dateLayout, h, loc); err == nil {
			c.holidays[d.Format(dateLayout)] = struct{}{}
		}
	}
	return c
}

// IsBusinessDay reports whether t's calendar date is a working day.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	t = t.In(c.loc)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[t.Format(dateLayout)]
	return !holiday
}

// AddBusinessDays returns the date n working days after from, at midnight in the
// calendar's location.
func (c *Calendar) AddBusinessDays(from time.Time, n int) time.Time {
	day := c.midnight(from)
	for added := 0; added < n; {
		day = day.AddDate(0, 0, 1)
		if c.IsBusinessDay(day) {
			added++
		}
	}
	return day
}

// BusinessDaysBetween is the signed number of working days from 'from' to 'to'.
// Only dates matter; positive when to is after from.
func (c *Calendar) BusinessDaysBetween(from, to time.Time) int {
	start, end := c.midnight(from), c.midnight(to)
	sign := 1
	if end.Before(start) {
		start, end = end, start
		sign = -1
	}

	count := 0
	for day := start.AddDate(0, 0, 1); !day.After(end); day = day.AddDate(0, 0, 1) {
		if c.IsBusinessDay(day) {
			count++
		}
	}
	return sign * count
}

func (c *Calendar) midnight(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}
