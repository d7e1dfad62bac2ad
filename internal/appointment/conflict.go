package appointment

import (
	"github.com/google/uuid"
)

// Candidate is a proposed placement of a new or edited appointment.
// AppointmentID is uuid.Nil for new bookings.
type Candidate struct {
	AppointmentID  uuid.UUID
	ProfessionalID uuid.UUID
	Resource       Resource
	Interval       Interval
}

// Snapshot holds the bookings read for a decision. Both slices must cover
// at least the candidate's interval.
type Snapshot struct {
	ResourceBookings     []Appointment
	ProfessionalBookings []Appointment
}

// DetectConflict decides whether c can be committed against snap. Rules run
// in a fixed order and only the first violated rule is reported:
// interval validity, professional exclusivity, resource capacity.
func DetectConflict(c Candidate, snap Snapshot) *Rejection {
	if !c.Interval.Valid() {
		return reject(ErrInvalidInterval, "%s", c.Interval)
	}

	if ids := professionalOverlaps(snap.ProfessionalBookings, c); len(ids) > 0 {
		r := reject(ErrProfessionalConflict, "professional %s busy during %s", c.ProfessionalID, c.Interval)
		r.Conflicts = ids
		return r
	}

	model := NewCapacityModel(snap.ResourceBookings)
	if !model.HasCapacity(c.Resource, c.Interval, c.AppointmentID) {
		r := reject(ErrResourceCapacityExceeded, "resource %q holds %d of %d during %s",
			c.Resource.Name, model.OccupancyAt(c.Resource.ID, c.Interval, c.AppointmentID), c.Resource.Capacity, c.Interval)
		r.Conflicts = model.overlapping(c.Resource.ID, c.Interval, c.AppointmentID)
		return r
	}

	return nil
}

func professionalOverlaps(bookings []Appointment, c Candidate) []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range bookings {
		if a.ProfessionalID != c.ProfessionalID || a.ID == c.AppointmentID || !a.Status.Active() {
			continue
		}
		if a.Interval().Overlaps(c.Interval) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
