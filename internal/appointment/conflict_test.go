package appointment

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestDetectConflict(t *testing.T) {
	t.Parallel()

	room := Resource{ID: uuid.New(), Name: "Room A", Capacity: 1, Active: true}
	drX := uuid.New()
	existing := booking(room.ID, drX, at(10, 0), 30, StatusScheduled)
	snap := Snapshot{
		ResourceBookings:     []Appointment{existing},
		ProfessionalBookings: []Appointment{existing},
	}

	tests := []struct {
		name      string
		candidate Candidate
		want      error
	}{
		{
			name:      "zero duration",
			candidate: Candidate{ProfessionalID: drX, Resource: room, Interval: NewInterval(at(10, 0), 0)},
			want:      ErrInvalidInterval,
		},
		{
			name:      "professional reported before capacity",
			candidate: Candidate{ProfessionalID: drX, Resource: room, Interval: NewInterval(at(10, 15), 30)},
			want:      ErrProfessionalConflict,
		},
		{
			name:      "capacity",
			candidate: Candidate{ProfessionalID: uuid.New(), Resource: room, Interval: NewInterval(at(10, 15), 30)},
			want:      ErrResourceCapacityExceeded,
		},
		{
			name:      "back to back",
			candidate: Candidate{ProfessionalID: drX, Resource: room, Interval: NewInterval(at(10, 30), 30)},
		},
		{
			name: "self is excluded",
			candidate: Candidate{AppointmentID: existing.ID, ProfessionalID: drX, Resource: room,
				Interval: NewInterval(at(10, 0), 30)},
		},
	}

	for _, tt := range tests {
		rej := DetectConflict(tt.candidate, snap)
		if tt.want == nil {
			if rej != nil {
				t.Errorf("%s: unexpected rejection %v", tt.name, rej)
			}
			continue
		}
		if rej == nil || !errors.Is(rej, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, rej, tt.want)
		}
	}
}

func TestDetectConflictReportsConflictingIDs(t *testing.T) {
	t.Parallel()

	station := Resource{ID: uuid.New(), Name: "Station", Capacity: 2, Active: true}
	a := booking(station.ID, uuid.New(), at(9, 0), 45, StatusScheduled)
	b := booking(station.ID, uuid.New(), at(9, 15), 45, StatusInProgress)
	cancelled := booking(station.ID, uuid.New(), at(9, 0), 45, StatusCancelled)

	rej := DetectConflict(
		Candidate{ProfessionalID: uuid.New(), Resource: station, Interval: NewInterval(at(9, 30), 30)},
		Snapshot{ResourceBookings: []Appointment{a, b, cancelled}},
	)
	if rej == nil {
		t.Fatal("expected capacity rejection")
	}
	if len(rej.Conflicts) != 2 || rej.Conflicts[0] != a.ID || rej.Conflicts[1] != b.ID {
		t.Errorf("conflicts = %v, want [%s %s]", rej.Conflicts, a.ID, b.ID)
	}
	if Retryable(rej) {
		t.Error("capacity rejection must not be retryable")
	}
	if got := Kind(rej); got != "resource_capacity_exceeded" {
		t.Errorf("Kind = %q", got)
	}
}

func TestProfessionalExclusivityIgnoresTerminalBookings(t *testing.T) {
	t.Parallel()

	drX := uuid.New()
	room := Resource{ID: uuid.New(), Capacity: 1, Active: true}
	done := booking(uuid.New(), drX, at(10, 0), 30, StatusCompleted)

	rej := DetectConflict(
		Candidate{ProfessionalID: drX, Resource: room, Interval: NewInterval(at(10, 0), 30)},
		Snapshot{ProfessionalBookings: []Appointment{done}},
	)
	if rej != nil {
		t.Errorf("completed booking blocked the professional: %v", rej)
	}
}
