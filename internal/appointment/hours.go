package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HoursProvider supplies the clinic's working calendar. OpenWindows returns
// the bookable windows of the calendar day containing day, in order; an
// empty result means the clinic is closed.
type HoursProvider interface {
	OpenWindows(ctx context.Context, day time.Time) ([]Interval, error)
	Location() *time.Location
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock accepts "15:04" or "15:04:05".
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if len(s) > 5 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

// On places c on the calendar day of day in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, loc)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

type DayHours struct {
	Open       Clock
	Close      Clock
	BreakStart *Clock
	BreakEnd   *Clock
}

func (d DayHours) Validate() error {
	if d.Close.minutes() <= d.Open.minutes() {
		return fmt.Errorf("close %s must be after open %s", d.Close, d.Open)
	}
	if (d.BreakStart == nil) != (d.BreakEnd == nil) {
		return errors.New("break needs both start and end")
	}
	if d.BreakStart != nil {
		if d.BreakEnd.minutes() <= d.BreakStart.minutes() {
			return fmt.Errorf("break end %s must be after break start %s", d.BreakEnd, d.BreakStart)
		}
		if d.BreakStart.minutes() < d.Open.minutes() || d.BreakEnd.minutes() > d.Close.minutes() {
			return fmt.Errorf("break %s-%s outside opening hours", d.BreakStart, d.BreakEnd)
		}
	}
	return nil
}

// WeeklyHours is a HoursProvider with a fixed schedule per weekday.
type WeeklyHours struct {
	days map[time.Weekday]DayHours
	loc  *time.Location
}

func NewWeeklyHours(loc *time.Location, days map[time.Weekday]DayHours) (*WeeklyHours, error) {
	if loc == nil {
		loc = time.UTC
	}
	for wd, d := range days {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", wd, err)
		}
	}
	return &WeeklyHours{days: days, loc: loc}, nil
}

func (w *WeeklyHours) Location() *time.Location {
	return w.loc
}

func (w *WeeklyHours) OpenWindows(_ context.Context, day time.Time) ([]Interval, error) {
	d, ok := w.days[day.In(w.loc).Weekday()]
	if !ok {
		return nil, nil
	}
	open, closing := d.Open.On(day, w.loc), d.Close.On(day, w.loc)
	if d.BreakStart == nil {
		return []Interval{{Start: open, End: closing}}, nil
	}

	var windows []Interval
	if bs := d.BreakStart.On(day, w.loc); bs.After(open) {
		windows = append(windows, Interval{Start: open, End: bs})
	}
	if be := d.BreakEnd.On(day, w.loc); closing.After(be) {
		windows = append(windows, Interval{Start: be, End: closing})
	}
	return windows, nil
}
