package billing

import "time"

// Clock returns the current time. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// SystemClock returns wall-clock time in UTC, truncated to seconds to match
// the DATETIME precision used by the database.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

func daysFrom(t time.Time, days int) time.Time {
	return t.Add(time.Duration(days) * 24 * time.Hour)
}
