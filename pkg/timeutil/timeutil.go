// Package timeutil provides the injectable clock used for cache expiry and
// the date helpers used for exam dates.
// Exam dates are calendar days in the school timezone (UTC+8, no DST).
package timeutil

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// SchoolTZ is the timezone exam dates are recorded in.
var SchoolTZ = time.FixedZone("Asia/Shanghai", 8*60*60)

// DateFormat is the canonical exam date layout.
const DateFormat = "2006-01-02"

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock returns the current time. Components that expire state take a Clock
// so tests can move time forward deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FakeClock is a manually advanced clock, safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a fake clock set to start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// DATES
// ══════════════════════════════════════════════════════════════════════════════

// Date creates midnight of the given day in the school timezone.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, SchoolTZ)
}

// StartOfDay truncates t to midnight in the school timezone.
func StartOfDay(t time.Time) time.Time {
	local := t.In(SchoolTZ)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, SchoolTZ)
}

// ParseDate accepts "2006-01-02", "2006/01/02" or RFC 3339 and returns the
// start of that day in the school timezone. Empty input yields the zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return StartOfDay(t), nil
	}
	for _, layout := range []string{DateFormat, "2006/01/02"} {
		if t, err := time.ParseInLocation(layout, s, SchoolTZ); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
}

// FormatDate formats t as YYYY-MM-DD in the school timezone, or "" for the
// zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(SchoolTZ).Format(DateFormat)
}

// MeanSpacing returns the average gap between consecutive ascending times,
// or fallback when fewer than two times are given or the gap is not positive.
func MeanSpacing(times []time.Time, fallback time.Duration) time.Duration {
	if len(times) < 2 {
		return fallback
	}
	total := times[len(times)-1].Sub(times[0])
	step := total / time.Duration(len(times)-1)
	if step <= 0 {
		return fallback
	}
	return step
}
