package appointment

import (
	"testing"

	"github.com/google/uuid"
)

func TestPeakConcurrency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		intervals []Interval
		want      int
	}{
		{"empty", nil, 0},
		{"single", []Interval{NewInterval(at(9, 0), 30)}, 1},
		{"back to back", []Interval{NewInterval(at(9, 0), 30), NewInterval(at(9, 30), 30)}, 1},
		{"staggered pairs", []Interval{
			NewInterval(at(9, 0), 30),
			NewInterval(at(9, 20), 30),
			NewInterval(at(9, 40), 30),
		}, 2},
		{"stacked", []Interval{
			NewInterval(at(9, 0), 45),
			NewInterval(at(9, 0), 45),
			NewInterval(at(9, 15), 15),
		}, 3},
	}

	for _, tt := range tests {
		if got := peakConcurrency(tt.intervals); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestOccupancyAt(t *testing.T) {
	t.Parallel()

	station := Resource{ID: uuid.New(), Name: "Station", Capacity: 3, Active: true}
	other := uuid.New()

	first := booking(station.ID, uuid.New(), at(9, 0), 45, StatusScheduled)
	bookings := []Appointment{
		first,
		booking(station.ID, uuid.New(), at(9, 0), 45, StatusInProgress),
		booking(station.ID, uuid.New(), at(9, 0), 45, StatusCancelled),
		booking(station.ID, uuid.New(), at(9, 0), 45, StatusCompleted),
		booking(other, uuid.New(), at(9, 0), 45, StatusScheduled),
		booking(station.ID, uuid.New(), at(9, 45), 45, StatusScheduled),
	}
	model := NewCapacityModel(bookings)

	candidate := NewInterval(at(9, 0), 45)
	if got := model.OccupancyAt(station.ID, candidate, uuid.Nil); got != 2 {
		t.Errorf("occupancy = %d, want 2 (terminal and foreign bookings ignored)", got)
	}
	if got := model.OccupancyAt(station.ID, candidate, first.ID); got != 1 {
		t.Errorf("occupancy excluding self = %d, want 1", got)
	}
	if !model.HasCapacity(station, candidate, uuid.Nil) {
		t.Error("station with 2 of 3 taken should have capacity")
	}

	full := append(bookings, booking(station.ID, uuid.New(), at(9, 30), 30, StatusScheduled))
	model = NewCapacityModel(full)
	if model.HasCapacity(station, candidate, uuid.Nil) {
		t.Error("station with 3 of 3 taken at 09:30 should be full")
	}
	if !model.HasCapacity(station, NewInterval(at(8, 0), 60), uuid.Nil) {
		t.Error("interval ending at 09:00 should not see the 09:00 bookings")
	}
}

func TestOccupancyAtCountsPeakNotOverlaps(t *testing.T) {
	t.Parallel()

	room := Resource{ID: uuid.New(), Capacity: 2, Active: true}
	// Two bookings that overlap the candidate but never each other.
	model := NewCapacityModel([]Appointment{
		booking(room.ID, uuid.New(), at(9, 0), 30, StatusScheduled),
		booking(room.ID, uuid.New(), at(9, 30), 30, StatusScheduled),
	})

	candidate := NewInterval(at(9, 0), 60)
	if got := model.OccupancyAt(room.ID, candidate, uuid.Nil); got != 1 {
		t.Errorf("occupancy = %d, want 1", got)
	}
	if !model.HasCapacity(room, candidate, uuid.Nil) {
		t.Error("a capacity-2 room is never more than half full here")
	}
}
