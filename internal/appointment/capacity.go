package appointment

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// CapacityModel answers occupancy questions over a snapshot of bookings.
// It holds no state beyond the slice it was built from.
type CapacityModel struct {
	bookings []Appointment
}

func NewCapacityModel(bookings []Appointment) CapacityModel {
	return CapacityModel{bookings: bookings}
}

// OccupancyAt returns the highest number of active appointments held on
// resourceID at any single instant of iv, ignoring the appointment whose id
// equals excluding.
//
// This is not the plain count of overlapping bookings: two back-to-back
// bookings that both overlap iv but never each other count as 1, not 2.
// The per-instant capacity invariant still holds, and shared stations
// accept bookings a plain count would reject.
func (m CapacityModel) OccupancyAt(resourceID uuid.UUID, iv Interval, excluding uuid.UUID) int {
	var held []Interval
	for _, a := range m.bookings {
		if a.ResourceID != resourceID || a.ID == excluding || !a.Status.Active() {
			continue
		}
		if booked := a.Interval(); booked.Overlaps(iv) {
			held = append(held, clip(booked, iv))
		}
	}
	return peakConcurrency(held)
}

func (m CapacityModel) HasCapacity(resource Resource, iv Interval, excluding uuid.UUID) bool {
	return m.OccupancyAt(resource.ID, iv, excluding) < resource.Capacity
}

// overlapping lists the active bookings on resourceID that overlap iv.
func (m CapacityModel) overlapping(resourceID uuid.UUID, iv Interval, excluding uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range m.bookings {
		if a.ResourceID == resourceID && a.ID != excluding && a.Status.Active() && a.Interval().Overlaps(iv) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

type edge struct {
	at    time.Time
	delta int
}

// peakConcurrency sweeps the interval edges. Ends sort before starts at the
// same instant, so back-to-back intervals never count as concurrent.
func peakConcurrency(intervals []Interval) int {
	if len(intervals) == 0 {
		return 0
	}
	edges := make([]edge, 0, len(intervals)*2)
	for _, iv := range intervals {
		edges = append(edges, edge{at: iv.Start, delta: 1}, edge{at: iv.End, delta: -1})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at.Equal(edges[j].at) {
			return edges[i].delta < edges[j].delta
		}
		return edges[i].at.Before(edges[j].at)
	})

	current, peak := 0, 0
	for _, e := range edges {
		current += e.delta
		if current > peak {
			peak = current
		}
	}
	return peak
}

func clip(iv, bounds Interval) Interval {
	out := iv
	if out.Start.Before(bounds.Start) {
		out.Start = bounds.Start
	}
	if out.End.After(bounds.End) {
		out.End = bounds.End
	}
	return out
}
