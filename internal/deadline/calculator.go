package deadline

import (
	"time"
)

// DefaultResponseDays applies when a request type does not declare its own window.
const DefaultResponseDays = 15

// Calculator derives response-due dates and overdue status for requests.
type Calculator struct {
	calendar    *Calendar
	defaultDays int
	now         func() time.Time
}

func NewCalculator(calendar *Calendar, defaultDays int) *Calculator {
	if defaultDays < 1 {
		defaultDays = DefaultResponseDays
	}
	return &Calculator{calendar: calendar, defaultDays: defaultDays, now: time.Now}
}

// WithClock replaces the calculator's notion of today. Used by tests and the sweeper.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Calculator) Calendar() *Calendar {
	return c.calendar
}

// ResponseDue is createdAt plus days working days (the default window when days <= 0).
func (c *Calculator) ResponseDue(createdAt time.Time, days int) time.Time {
	if days <= 0 {
		days = c.defaultDays
	}
	return c.calendar.AddBusinessDays(createdAt, days)
}

// DaysUntilResponseDue is the signed working-day distance from today to the due date.
func (c *Calculator) DaysUntilResponseDue(createdAt time.Time, days int) int {
	return c.calendar.BusinessDaysBetween(c.now(), c.ResponseDue(createdAt, days))
}

func (c *Calculator) Overdue(createdAt time.Time, days int) bool {
	return c.DaysUntilResponseDue(createdAt, days) < 0
}
