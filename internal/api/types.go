package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID       string    `json:"patient_id"`
	ProfessionalID  string    `json:"professional_id"`
	ServiceTypeID   string    `json:"service_type_id"`
	ResourceID      string    `json:"resource_id"`
	Start           time.Time `json:"start"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
}

type RescheduleRequest struct {
	Start      time.Time `json:"start"`
	ResourceID *string   `json:"resource_id,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type NextSlotResponse struct {
	ResourceID uuid.UUID     `json:"resource_id"`
	Slot       *SlotResponse `json:"slot"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	ProfessionalID  uuid.UUID  `json:"professional_id"`
	ServiceTypeID   uuid.UUID  `json:"service_type_id"`
	ResourceID      uuid.UUID  `json:"resource_id"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedBy       uuid.UUID  `json:"created_by"`
	ModifiedBy      *uuid.UUID `json:"modified_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type ListAppointmentsResponse struct {
	From         time.Time             `json:"from"`
	To           time.Time             `json:"to"`
	Appointments []AppointmentResponse `json:"appointments"`
}

// ErrorResponse is the body of every non-2xx reply. Conflicts and
// SuggestedSlot are only set for scheduling rejections.
type ErrorResponse struct {
	Error         string        `json:"error"`
	Details       string        `json:"details,omitempty"`
	Retryable     bool          `json:"retryable"`
	Conflicts     []uuid.UUID   `json:"conflicts,omitempty"`
	SuggestedSlot *SlotResponse `json:"suggested_slot,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ProfessionalID:  a.ProfessionalID,
		ServiceTypeID:   a.ServiceTypeID,
		ResourceID:      a.ResourceID,
		Start:           a.Start,
		End:             a.End(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Notes:           a.Notes,
		CreatedBy:       a.CreatedBy,
		ModifiedBy:      a.ModifiedBy,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toSlotResponse(iv *appointment.Interval) *SlotResponse {
	if iv == nil {
		return nil
	}
	return &SlotResponse{Start: iv.Start, End: iv.End}
}
