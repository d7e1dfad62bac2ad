package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrResourceNotFound    = fmt.Errorf("resource %w", ErrNotFound)
	ErrServiceTypeNotFound = fmt.Errorf("service type %w", ErrNotFound)

	// ErrStatusChanged is returned by UpdateAppointment when IfStatus no
	// longer matches the stored row.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)

// Repository contains all storage interactions needed by the scheduler.
// Window queries return every appointment whose interval overlaps
// [from, to), whatever its status.
type Repository interface {
	ListByResource(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListByProfessional(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListAppointments(ctx context.Context, from, to time.Time) ([]Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// InsertAppointment assigns ID and timestamps.
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error)

	GetResource(ctx context.Context, id uuid.UUID) (*Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
	GetServiceType(ctx context.Context, id uuid.UUID) (*ServiceType, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
