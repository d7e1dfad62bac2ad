package appointment

import (
	"fmt"
	"time"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MaxDurationMinutes bounds a single booking to one day. Longer durations
// are rejected before any time arithmetic so they cannot overflow.
const MaxDurationMinutes = 24 * 60

func NewInterval(start time.Time, minutes int) Interval {
	return Interval{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

// Valid reports whether the interval has a positive length.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Covers reports whether o lies entirely inside i.
func (i Interval) Covers(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// dayWindow returns the calendar day(s) in loc spanned by iv. Bookings are
// fetched for this window so that checks run against a superset of the
// candidate's neighbours.
func dayWindow(iv Interval, loc *time.Location) Interval {
	start := startOfDay(iv.Start, loc)
	end := startOfDay(iv.End, loc)
	if !end.Equal(iv.End.In(loc)) || !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return Interval{Start: start, End: end}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
