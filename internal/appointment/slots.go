package appointment

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// FindNextAvailableSlot returns the earliest interval of the given length,
// starting no earlier than after, that fits inside the clinic's open windows
// and below the resource's capacity. It looks ahead SearchDays calendar days
// and returns nil when nothing fits.
func (s *Scheduler) FindNextAvailableSlot(ctx context.Context, resourceID uuid.UUID, after time.Time, length time.Duration) (*Interval, error) {
	if length <= 0 || length > MaxDurationMinutes*time.Minute {
		return nil, reject(ErrInvalidInterval, "slot length must be positive and at most %d minutes, got %s", MaxDurationMinutes, length)
	}
	resource, err := s.loadResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return s.searchSlot(ctx, *resource, nil, after, length, s.searchDays, uuid.Nil)
}

// searchSlot scans days calendar days starting with the day of after. When
// professionalID is set the professional must also be free. excluding is
// ignored in both booking sets so an appointment can be moved onto itself.
func (s *Scheduler) searchSlot(ctx context.Context, resource Resource, professionalID *uuid.UUID, after time.Time, length time.Duration, days int, excluding uuid.UUID) (*Interval, error) {
	loc := s.hours.Location()
	first := startOfDay(after, loc)

	for d := 0; d < days; d++ {
		day := first.AddDate(0, 0, d)
		windows, err := s.hours.OpenWindows(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("open windows for %s: %w", day.Format(time.DateOnly), err)
		}
		if len(windows) == 0 {
			continue
		}

		snap, err := s.daySnapshot(ctx, resource.ID, professionalID, day)
		if err != nil {
			return nil, err
		}

		candidate := Candidate{AppointmentID: excluding, Resource: resource}
		if professionalID != nil {
			candidate.ProfessionalID = *professionalID
		}

		for _, w := range windows {
			if !w.End.After(after) {
				continue
			}
			lo := w.Start
			if after.After(lo) {
				lo = after
			}
			for _, start := range candidateStarts(lo, w.End, snap, excluding) {
				candidate.Interval = Interval{Start: start, End: start.Add(length)}
				if candidate.Interval.End.After(w.End) {
					break
				}
				if DetectConflict(candidate, snap) == nil {
					iv := candidate.Interval
					return &iv, nil
				}
			}
		}
	}

	return nil, nil
}

func (s *Scheduler) daySnapshot(ctx context.Context, resourceID uuid.UUID, professionalID *uuid.UUID, day time.Time) (Snapshot, error) {
	from := day
	to := day.AddDate(0, 0, 1)

	var snap Snapshot
	var err error
	snap.ResourceBookings, err = s.repo.ListByResource(ctx, resourceID, from, to)
	if err != nil {
		return Snapshot{}, persistenceErr("list resource bookings", err)
	}
	if professionalID != nil {
		snap.ProfessionalBookings, err = s.repo.ListByProfessional(ctx, *professionalID, from, to)
		if err != nil {
			return Snapshot{}, persistenceErr("list professional bookings", err)
		}
	}
	return snap, nil
}

// candidateStarts lists lo and every end of an active booking inside
// [lo, hi), ascending. The earliest feasible start is always one of these:
// occupancy can only drop at a booking's end.
func candidateStarts(lo, hi time.Time, snap Snapshot, excluding uuid.UUID) []time.Time {
	starts := []time.Time{lo}
	add := func(bookings []Appointment) {
		for _, a := range bookings {
			if a.ID == excluding || !a.Status.Active() {
				continue
			}
			if end := a.End(); end.After(lo) && end.Before(hi) {
				starts = append(starts, end)
			}
		}
	}
	add(snap.ResourceBookings)
	add(snap.ProfessionalBookings)

	slices.SortFunc(starts, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(starts, func(a, b time.Time) bool { return a.Equal(b) })
}
