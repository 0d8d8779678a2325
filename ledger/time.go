package ledger

import "time"

// Clock returns the current time. Tests inject fixed clocks.
type Clock func() time.Time

// SystemClock is the wall clock in the local time zone.
func SystemClock() time.Time { return time.Now() }

// timestampPrecision is the finest precision every store can persist.
const timestampPrecision = time.Microsecond

// DayBounds returns the first and last instant of t's calendar day in t's
// location. Both ends are inclusive.
func DayBounds(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}
