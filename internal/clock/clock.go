package clock

import (
	"fmt"
	"strings"
	"time"
)

// Clock resolves calendar-day boundaries in a fixed UTC offset (no DST,
// no timezone database). The shop operates on WIB (UTC+7), so "today"
// always means the WIB day regardless of where the server runs.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New creates a Clock with the given fixed offset in hours from UTC.
func New(offsetHours int) *Clock {
	name := fmt.Sprintf("UTC+%d", offsetHours)
	if offsetHours < 0 {
		name = fmt.Sprintf("UTC%d", offsetHours)
	}
	return &Clock{
		loc: time.FixedZone(name, offsetHours*3600),
		now: time.Now,
	}
}

// NewWithNow creates a Clock with an injectable time source for tests.
func NewWithNow(offsetHours int, now func() time.Time) *Clock {
	c := New(offsetHours)
	c.now = now
	return c
}

// Now returns the current time expressed in the fixed offset.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// DayStart truncates t to 00:00:00 of its calendar day in the fixed offset.
func (c *Clock) DayStart(t time.Time) time.Time {
	lt := t.In(c.loc)
	y, m, d := lt.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// DayEnd returns 23:59:59.999 of t's calendar day in the fixed offset.
func (c *Clock) DayEnd(t time.Time) time.Time {
	return c.DayStart(t).Add(24*time.Hour - time.Millisecond)
}

// TodayRange returns the start and end of the current day.
func (c *Clock) TodayRange() (time.Time, time.Time) {
	now := c.Now()
	return c.DayStart(now), c.DayEnd(now)
}

// ParseDay parses a user-supplied date and normalizes it to the start of
// its calendar day, which is the grouping key for daily ledger rows.
// Accepts "YYYY-MM-DD" or a full RFC 3339 timestamp.
func (c *Clock) ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if strings.Contains(s, "T") {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		return c.DayStart(t), nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// ParseTimestamp parses a point-in-time value for transaction rows.
// A bare "YYYY-MM-DD" gets the current wall-clock time on that day, so
// same-day transactions keep their entry order.
func (c *Clock) ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return c.Now(), nil
	}
	if strings.Contains(s, "T") {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return t.In(c.loc), nil
	}
	day, err := c.ParseDay(s)
	if err != nil {
		return time.Time{}, err
	}
	now := c.Now()
	return day.Add(time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second), nil
}
