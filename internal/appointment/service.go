package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/lock"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventStatusChanged          = "APPOINTMENT_STATUS_CHANGED"
)

const maxTransitionAttempts = 3

type Options struct {
	// SearchDays bounds FindNextAvailableSlot. Defaults to 7.
	SearchDays int
	Now        func() time.Time
}

type Scheduler struct {
	repo       Repository
	locker     lock.Locker
	hours      HoursProvider
	log        *zap.Logger
	searchDays int
	now        func() time.Time
}

func NewScheduler(repo Repository, locker lock.Locker, hours HoursProvider, logger *zap.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SearchDays <= 0 {
		opts.SearchDays = 7
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		repo:       repo,
		locker:     locker,
		hours:      hours,
		log:        logger.Named("scheduler"),
		searchDays: opts.SearchDays,
		now:        opts.Now,
	}
}

type CreateRequest struct {
	PatientID      uuid.UUID
	ProfessionalID uuid.UUID
	ServiceTypeID  uuid.UUID
	ResourceID     uuid.UUID
	Start          time.Time
	// DurationMinutes falls back to the service type default when nil.
	DurationMinutes *int
	Notes           *string
	Actor           uuid.UUID
}

type RescheduleRequest struct {
	AppointmentID uuid.UUID
	Start         time.Time
	// ResourceID keeps the current resource when nil.
	ResourceID *uuid.UUID
	Actor      uuid.UUID
}

// Create books a new appointment in the scheduled state. The conflict check
// and the insert run under the resource and professional locks.
func (s *Scheduler) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	log := s.log.With(
		zap.String("op", "create"),
		zap.Stringer("resource_id", req.ResourceID),
		zap.Stringer("professional_id", req.ProfessionalID),
	)

	minutes, err := s.resolveDuration(ctx, req)
	if err != nil {
		return nil, s.failed(log, err)
	}
	iv := NewInterval(req.Start, minutes)
	if !iv.Valid() {
		return nil, s.failed(log, reject(ErrInvalidInterval, "%s", iv))
	}

	resource, err := s.loadResource(ctx, req.ResourceID)
	if err != nil {
		return nil, s.failed(log, err)
	}

	var created *Appointment
	err = s.withKeys(ctx, lockKeys(resource.ID, req.ProfessionalID), func(lockCtx context.Context) error {
		snap, err := s.snapshot(lockCtx, resource.ID, req.ProfessionalID, iv)
		if err != nil {
			return err
		}
		candidate := Candidate{ProfessionalID: req.ProfessionalID, Resource: *resource, Interval: iv}
		if rej := DetectConflict(candidate, snap); rej != nil {
			return rej
		}

		appt, err := s.repo.InsertAppointment(lockCtx, Appointment{
			PatientID:       req.PatientID,
			ProfessionalID:  req.ProfessionalID,
			ServiceTypeID:   req.ServiceTypeID,
			ResourceID:      resource.ID,
			Start:           req.Start,
			DurationMinutes: minutes,
			Status:          StatusScheduled,
			Notes:           req.Notes,
			CreatedBy:       req.Actor,
		})
		if err != nil {
			return persistenceErr("insert appointment", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		s.attachSuggestion(ctx, log, err, *resource, req.ProfessionalID, iv, uuid.Nil)
		return nil, s.failed(log, err)
	}

	log.Info("appointment created", zap.Stringer("appointment_id", created.ID), zap.Stringer("interval", iv))
	s.logEvent(ctx, created.ID, req.Actor, EventAppointmentCreated, map[string]any{
		"resource_id":     created.ResourceID.String(),
		"professional_id": created.ProfessionalID.String(),
		"start":           created.Start,
		"end":             created.End(),
	})

	return created, nil
}

// Reschedule moves a scheduled appointment to a new start and optionally a
// new resource. On rejection the stored appointment is left untouched.
func (s *Scheduler) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	log := s.log.With(zap.String("op", "reschedule"), zap.Stringer("appointment_id", req.AppointmentID))

	current, err := s.loadAppointment(ctx, req.AppointmentID)
	if err != nil {
		return nil, s.failed(log, err)
	}
	if current.Status != StatusScheduled {
		return nil, s.failed(log, reject(ErrInvalidTransition, "cannot reschedule a %s appointment", current.Status))
	}

	resourceID := current.ResourceID
	if req.ResourceID != nil {
		resourceID = *req.ResourceID
	}
	iv := NewInterval(req.Start, current.DurationMinutes)
	if !iv.Valid() {
		return nil, s.failed(log, reject(ErrInvalidInterval, "%s", iv))
	}

	resource, err := s.loadResource(ctx, resourceID)
	if err != nil {
		return nil, s.failed(log, err)
	}

	var (
		result *Appointment
		moved  bool
	)
	err = s.withKeys(ctx, lockKeys(resource.ID, current.ProfessionalID), func(lockCtx context.Context) error {
		fresh, err := s.loadAppointment(lockCtx, current.ID)
		if err != nil {
			return err
		}
		if fresh.Status != StatusScheduled {
			return reject(ErrInvalidTransition, "cannot reschedule a %s appointment", fresh.Status)
		}

		snap, err := s.snapshot(lockCtx, resource.ID, fresh.ProfessionalID, iv)
		if err != nil {
			return err
		}
		candidate := Candidate{
			AppointmentID:  fresh.ID,
			ProfessionalID: fresh.ProfessionalID,
			Resource:       *resource,
			Interval:       iv,
		}
		if rej := DetectConflict(candidate, snap); rej != nil {
			return rej
		}

		if fresh.Start.Equal(req.Start) && fresh.ResourceID == resource.ID {
			result = fresh
			return nil
		}

		scheduled := StatusScheduled
		updated, err := s.repo.UpdateAppointment(lockCtx, fresh.ID, AppointmentPatch{
			Start:      &req.Start,
			ResourceID: &resource.ID,
			ModifiedBy: actorRef(req.Actor),
			IfStatus:   &scheduled,
		})
		switch {
		case errors.Is(err, ErrStatusChanged):
			return reject(ErrInvalidTransition, "appointment %s left the scheduled state", fresh.ID)
		case errors.Is(err, ErrNotFound):
			return ErrAppointmentNotFound
		case err != nil:
			return persistenceErr("update appointment", err)
		}
		result, moved = updated, true
		return nil
	})
	if err != nil {
		s.attachSuggestion(ctx, log, err, *resource, current.ProfessionalID, iv, current.ID)
		return nil, s.failed(log, err)
	}

	if !moved {
		log.Debug("reschedule is a no-op")
		return result, nil
	}

	log.Info("appointment rescheduled", zap.Stringer("interval", iv), zap.Stringer("resource_id", resource.ID))
	s.logEvent(ctx, result.ID, req.Actor, EventAppointmentRescheduled, map[string]any{
		"from_start":       current.Start,
		"from_resource_id": current.ResourceID.String(),
		"start":            result.Start,
		"resource_id":      result.ResourceID.String(),
	})
	return result, nil
}

// Cancel moves an appointment to cancelled without taking scheduling locks;
// releasing capacity can never violate an invariant. Cancelling an already
// cancelled appointment returns it unchanged.
func (s *Scheduler) Cancel(ctx context.Context, id, actor uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, actor, true)
}

// TransitionStatus applies a lifecycle transition checked by ValidateTransition.
func (s *Scheduler) TransitionStatus(ctx context.Context, id uuid.UUID, target Status, actor uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, target, actor, false)
}

func (s *Scheduler) transition(ctx context.Context, id uuid.UUID, target Status, actor uuid.UUID, idempotent bool) (*Appointment, error) {
	log := s.log.With(zap.String("op", "transition"), zap.Stringer("appointment_id", id), zap.String("target", string(target)))

	for attempt := 1; ; attempt++ {
		current, err := s.loadAppointment(ctx, id)
		if err != nil {
			return nil, s.failed(log, err)
		}
		if idempotent && current.Status == target {
			return current, nil
		}
		if err := ValidateTransition(current.Status, target); err != nil {
			return nil, s.failed(log, err)
		}

		from := current.Status
		updated, err := s.repo.UpdateAppointment(ctx, id, AppointmentPatch{
			Status:     &target,
			ModifiedBy: actorRef(actor),
			IfStatus:   &from,
		})
		switch {
		case err == nil:
			log.Info("appointment status changed", zap.String("from", string(from)))
			eventType := EventStatusChanged
			if target == StatusCancelled {
				eventType = EventAppointmentCancelled
			}
			s.logEvent(ctx, id, actor, eventType, map[string]any{"from": from, "to": target})
			return updated, nil
		case errors.Is(err, ErrStatusChanged) && attempt < maxTransitionAttempts:
			log.Debug("status changed underneath, re-reading", zap.Int("attempt", attempt))
		case errors.Is(err, ErrStatusChanged):
			return nil, s.failed(log, reject(ErrInvalidTransition, "status of %s kept changing", id))
		case errors.Is(err, ErrNotFound):
			return nil, s.failed(log, ErrAppointmentNotFound)
		default:
			return nil, s.failed(log, persistenceErr("update appointment status", err))
		}
	}
}

func (s *Scheduler) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.loadAppointment(ctx, id)
}

// ListAppointments returns every appointment overlapping [from, to).
func (s *Scheduler) ListAppointments(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	if !to.After(from) {
		return nil, reject(ErrInvalidInterval, "list window %s", Interval{Start: from, End: to})
	}
	list, err := s.repo.ListAppointments(ctx, from, to)
	if err != nil {
		return nil, persistenceErr("list appointments", err)
	}
	return list, nil
}

func (s *Scheduler) resolveDuration(ctx context.Context, req CreateRequest) (int, error) {
	if req.DurationMinutes != nil {
		if err := checkDuration(*req.DurationMinutes); err != nil {
			return 0, err
		}
		return *req.DurationMinutes, nil
	}

	st, err := s.repo.GetServiceType(ctx, req.ServiceTypeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrServiceTypeNotFound
		}
		return 0, persistenceErr("load service type", err)
	}
	if st.DefaultMinutes <= 0 {
		return 0, reject(ErrInvalidInterval, "service type %q has no default duration", st.Name)
	}
	if err := checkDuration(st.DefaultMinutes); err != nil {
		return 0, err
	}
	return st.DefaultMinutes, nil
}

func checkDuration(minutes int) error {
	switch {
	case minutes <= 0:
		return reject(ErrInvalidInterval, "duration must be positive, got %d minutes", minutes)
	case minutes > MaxDurationMinutes:
		return reject(ErrInvalidInterval, "duration of %d minutes exceeds the %d minute limit", minutes, MaxDurationMinutes)
	}
	return nil
}

func (s *Scheduler) loadResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	r, err := s.repo.GetResource(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, persistenceErr("load resource", err)
	}
	if !r.Active {
		return nil, reject(ErrResourceInactive, "resource %q", r.Name)
	}
	return r, nil
}

func (s *Scheduler) loadAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, persistenceErr("load appointment", err)
	}
	return a, nil
}

func (s *Scheduler) snapshot(ctx context.Context, resourceID, professionalID uuid.UUID, iv Interval) (Snapshot, error) {
	w := dayWindow(iv, s.hours.Location())

	resourceBookings, err := s.repo.ListByResource(ctx, resourceID, w.Start, w.End)
	if err != nil {
		return Snapshot{}, persistenceErr("list resource bookings", err)
	}
	professionalBookings, err := s.repo.ListByProfessional(ctx, professionalID, w.Start, w.End)
	if err != nil {
		return Snapshot{}, persistenceErr("list professional bookings", err)
	}

	return Snapshot{ResourceBookings: resourceBookings, ProfessionalBookings: professionalBookings}, nil
}

func (s *Scheduler) withKeys(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, keys, fn)
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	case errors.Is(err, lock.ErrUnavailable):
		return persistenceErr("acquire scheduling lock", err)
	}
	return err
}

// attachSuggestion fills in the first same-day placement that would have
// been accepted, for capacity and professional rejections only.
func (s *Scheduler) attachSuggestion(ctx context.Context, log *zap.Logger, err error, resource Resource, professionalID uuid.UUID, iv Interval, excluding uuid.UUID) {
	var rej *Rejection
	if !errors.As(err, &rej) {
		return
	}
	if !errors.Is(rej.Reason, ErrResourceCapacityExceeded) && !errors.Is(rej.Reason, ErrProfessionalConflict) {
		return
	}

	slot, searchErr := s.searchSlot(ctx, resource, &professionalID, iv.Start, iv.Duration(), 1, excluding)
	if searchErr != nil {
		log.Warn("next slot suggestion failed", zap.Error(searchErr))
		return
	}
	rej.Suggested = slot
}

func (s *Scheduler) failed(log *zap.Logger, err error) error {
	var rej *Rejection
	switch {
	case errors.As(err, &rej):
		log.Debug("request rejected", zap.String("reason", Kind(err)), zap.String("detail", rej.Detail),
			zap.String("conflicts", joinIDs(rej.Conflicts)))
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBusy):
		log.Debug("request refused", zap.String("reason", Kind(err)), zap.Error(err))
	default:
		log.Error("scheduling operation failed", zap.Error(err))
	}
	return err
}

func (s *Scheduler) logEvent(ctx context.Context, appointmentID, actor uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		ActorID:       actorRef(actor),
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log",
			zap.String("event", eventType), zap.Stringer("appointment_id", appointmentID), zap.Error(err))
	}
}

func lockKeys(resourceID, professionalID uuid.UUID) []string {
	return []string{"resource:" + resourceID.String(), "professional:" + professionalID.String()}
}

func actorRef(actor uuid.UUID) *uuid.UUID {
	if actor == uuid.Nil {
		return nil
	}
	return &actor
}
