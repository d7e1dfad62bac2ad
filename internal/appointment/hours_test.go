package appointment

import (
	"context"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "08:00", want: Clock{Hour: 8}},
		{in: " 13:30 ", want: Clock{Hour: 13, Minute: 30}},
		{in: "18:00:00", want: Clock{Hour: 18}},
		{in: "25:00", wantErr: true},
		{in: "noon", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseClock(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestDayHoursValidate(t *testing.T) {
	t.Parallel()

	bad := []DayHours{
		{Open: Clock{Hour: 18}, Close: Clock{Hour: 8}},
		{Open: Clock{Hour: 8}, Close: Clock{Hour: 18}, BreakStart: clock(12, 0)},
		{Open: Clock{Hour: 8}, Close: Clock{Hour: 18}, BreakStart: clock(13, 0), BreakEnd: clock(12, 0)},
		{Open: Clock{Hour: 8}, Close: Clock{Hour: 18}, BreakStart: clock(17, 0), BreakEnd: clock(19, 0)},
	}
	for i, d := range bad {
		if d.Validate() == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}

	if _, err := NewWeeklyHours(nil, map[time.Weekday]DayHours{time.Monday: bad[0]}); err == nil {
		t.Error("NewWeeklyHours accepted invalid hours")
	}
}

func TestWeeklyHoursOpenWindows(t *testing.T) {
	t.Parallel()

	h := clinicHours(t)
	ctx := context.Background()

	windows, err := h.OpenWindows(ctx, at(15, 0))
	if err != nil {
		t.Fatalf("OpenWindows: %v", err)
	}
	want := []Interval{
		{Start: at(8, 0), End: at(12, 0)},
		{Start: at(13, 0), End: at(18, 0)},
	}
	if len(windows) != len(want) {
		t.Fatalf("got %d windows, want %d", len(windows), len(want))
	}
	for i := range want {
		if !windows[i].Start.Equal(want[i].Start) || !windows[i].End.Equal(want[i].End) {
			t.Errorf("window %d = %s, want %s", i, windows[i], want[i])
		}
	}

	saturday := day.AddDate(0, 0, 5)
	windows, err = h.OpenWindows(ctx, saturday)
	if err != nil || len(windows) != 0 {
		t.Errorf("saturday: got %v, %v; want closed", windows, err)
	}
}

func TestWeeklyHoursUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-5", -5*3600)
	h, err := NewWeeklyHours(loc, map[time.Weekday]DayHours{
		time.Monday: {Open: Clock{Hour: 8}, Close: Clock{Hour: 12}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// 02:00 UTC on Tuesday is still Monday evening in UTC-5.
	windows, err := h.OpenWindows(context.Background(), day.AddDate(0, 0, 1).Add(2*time.Hour))
	if err != nil || len(windows) != 1 {
		t.Fatalf("got %v, %v", windows, err)
	}
	if got := windows[0].Start.UTC(); !got.Equal(at(13, 0)) {
		t.Errorf("open = %s, want 13:00 UTC", got)
	}
}
