package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type ResourceKind string

const (
	ResourceConsultationRoom ResourceKind = "consultation_room"
	ResourceTherapyStation   ResourceKind = "therapy_station"
)

type Role string

const (
	RoleDoctor          Role = "doctor"
	RolePhysiotherapist Role = "physiotherapist"
	RoleReception       Role = "reception"
	RoleAdmin           Role = "admin"
)

// Resource is a physical asset appointments occupy. Capacity is 1 for
// exclusive rooms and greater than 1 for shared stations.
type Resource struct {
	ID        uuid.UUID
	Name      string
	Kind      ResourceKind
	Capacity  int
	Active    bool
	CreatedAt time.Time
}

type Professional struct {
	ID        uuid.UUID
	Name      string
	Role      Role
	CreatedAt time.Time
}

// ServiceType is read-only reference data; DefaultMinutes is used when a
// booking request does not carry its own duration.
type ServiceType struct {
	ID             uuid.UUID
	Name           string
	ResourceKind   ResourceKind
	DefaultMinutes int
	BasePrice      float64
	Active         bool
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ProfessionalID  uuid.UUID
	ServiceTypeID   uuid.UUID
	ResourceID      uuid.UUID
	Start           time.Time
	DurationMinutes int
	Status          Status
	Notes           *string
	CreatedBy       uuid.UUID
	ModifiedBy      *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// End is always derived from Start and DurationMinutes.
func (a Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.Start, End: a.End()}
}

// AppointmentPatch lists the fields an update may change. Nil fields are
// left untouched. When IfStatus is set the update only applies if the
// stored status still equals it.
type AppointmentPatch struct {
	Start      *time.Time
	ResourceID *uuid.UUID
	Status     *Status
	ModifiedBy *uuid.UUID
	IfStatus   *Status
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	ActorID       *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
