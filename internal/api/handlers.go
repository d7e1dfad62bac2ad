package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Scheduler is the subset of *appointment.Scheduler the handlers call.
type Scheduler interface {
	Create(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, req appointment.RescheduleRequest) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id, actor uuid.UUID) (*appointment.Appointment, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, target appointment.Status, actor uuid.UUID) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error)
	FindNextAvailableSlot(ctx context.Context, resourceID uuid.UUID, after time.Time, length time.Duration) (*appointment.Interval, error)
}

type handlers struct {
	svc Scheduler
	log *zap.Logger
	loc *time.Location
	now func() time.Time
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	ids := make([]uuid.UUID, 4)
	for i, f := range []struct{ name, value string }{
		{"patient_id", req.PatientID},
		{"professional_id", req.ProfessionalID},
		{"service_type_id", req.ServiceTypeID},
		{"resource_id", req.ResourceID},
	} {
		id, err := uuid.Parse(f.value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+f.name, f.name+" must be a valid UUID")
			return
		}
		ids[i] = id
	}
	if req.Start.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_start", "start is required")
		return
	}
	actor := ActorFrom(r.Context())
	if actor == uuid.Nil {
		writeError(w, http.StatusBadRequest, "actor_required", "bookings must name the creating user")
		return
	}

	appt, err := h.svc.Create(r.Context(), appointment.CreateRequest{
		PatientID:       ids[0],
		ProfessionalID:  ids[1],
		ServiceTypeID:   ids[2],
		ResourceID:      ids[3],
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		Actor:           actor,
	})
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := h.parseBound(q.Get("from"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
		return
	}
	to, err := h.parseBound(q.Get("to"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", err.Error())
		return
	}

	list, err := h.svc.ListAppointments(r.Context(), from, to)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}

	resp := ListAppointmentsResponse{From: from, To: to, Appointments: make([]AppointmentResponse, 0, len(list))}
	for i := range list {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if req.Start.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_start", "start is required")
		return
	}

	var resourceID *uuid.UUID
	if req.ResourceID != nil {
		parsed, err := uuid.Parse(*req.ResourceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_resource_id", "resource_id must be a valid UUID")
			return
		}
		resourceID = &parsed
	}

	appt, err := h.svc.Reschedule(r.Context(), appointment.RescheduleRequest{
		AppointmentID: id,
		Start:         req.Start,
		ResourceID:    resourceID,
		Actor:         ActorFrom(r.Context()),
	})
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.Cancel(r.Context(), id, ActorFrom(r.Context()))
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	target := appointment.Status(req.Status)
	if !target.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status",
			"status must be one of scheduled, in_progress, completed, cancelled")
		return
	}

	appt, err := h.svc.TransitionStatus(r.Context(), id, target, ActorFrom(r.Context()))
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) nextSlot(w http.ResponseWriter, r *http.Request) {
	resourceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_resource_id", "id must be a valid UUID")
		return
	}

	q := r.URL.Query()
	minutes, err := strconv.Atoi(q.Get("duration_minutes"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_duration_minutes", "duration_minutes must be an integer")
		return
	}
	if minutes <= 0 || minutes > appointment.MaxDurationMinutes {
		writeError(w, http.StatusUnprocessableEntity, "invalid_interval",
			fmt.Sprintf("duration_minutes must be between 1 and %d", appointment.MaxDurationMinutes))
		return
	}

	after := h.now()
	if raw := q.Get("after"); raw != "" {
		if after, err = h.parseTime(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_after", err.Error())
			return
		}
	}

	slot, err := h.svc.FindNextAvailableSlot(r.Context(), resourceID, after, time.Duration(minutes)*time.Minute)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NextSlotResponse{ResourceID: resourceID, Slot: toSlotResponse(slot)})
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseBound reads a list window bound. Dates are taken in the clinic's
// time zone; a date used as the upper bound includes that whole day.
func (h *handlers) parseBound(raw string, upper bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("required, as RFC3339 or YYYY-MM-DD")
	}
	if d, err := time.ParseInLocation(time.DateOnly, raw, h.loc); err == nil {
		if upper {
			d = d.AddDate(0, 0, 1)
		}
		return d, nil
	}
	return h.parseTime(raw)
}

func (h *handlers) parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not an RFC3339 timestamp", raw)
	}
	return t, nil
}

func (h *handlers) writeSchedulingError(w http.ResponseWriter, r *http.Request, err error) {
	kind := appointment.Kind(err)
	resp := ErrorResponse{Error: kind, Retryable: appointment.Retryable(err)}

	var status int
	switch kind {
	case "invalid_interval":
		status = http.StatusUnprocessableEntity
	case "professional_conflict", "resource_capacity_exceeded", "invalid_transition", "resource_inactive", "busy":
		status = http.StatusConflict
	case "not_found":
		status = http.StatusNotFound
	case "persistence_failure":
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	var rej *appointment.Rejection
	switch {
	case errors.As(err, &rej):
		resp.Details = rej.Detail
		resp.Conflicts = rej.Conflicts
		resp.SuggestedSlot = toSlotResponse(rej.Suggested)
	case status >= http.StatusInternalServerError:
		// Storage errors can carry connection strings; keep them in the log.
		h.log.Error("request failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		resp.Details = http.StatusText(status)
	default:
		resp.Details = err.Error()
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
