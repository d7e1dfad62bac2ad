package appointment

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process. It backs tests and the
// STORE=memory mode; data is lost on restart.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]Appointment
	resources    map[uuid.UUID]Resource
	serviceTypes map[uuid.UUID]ServiceType
	events       []EventLog
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]Appointment),
		resources:    make(map[uuid.UUID]Resource),
		serviceTypes: make(map[uuid.UUID]ServiceType),
		now:          time.Now,
	}
}

// PutResource inserts or replaces r, assigning an ID when it has none.
func (r *MemoryRepository) PutResource(res Resource) Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = r.now()
	}
	r.resources[res.ID] = res
	return res
}

func (r *MemoryRepository) PutServiceType(st ServiceType) ServiceType {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	r.serviceTypes[st.ID] = st
	return st
}

// PutAppointment stores a as is, bypassing every check. Used to load
// fixtures that may already violate scheduling rules.
func (r *MemoryRepository) PutAppointment(a Appointment) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.appointments[a.ID] = a
	return a
}

func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}

func (r *MemoryRepository) ListByResource(_ context.Context, resourceID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.filter(from, to, func(a Appointment) bool { return a.ResourceID == resourceID }), nil
}

func (r *MemoryRepository) ListByProfessional(_ context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.filter(from, to, func(a Appointment) bool { return a.ProfessionalID == professionalID }), nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, from, to time.Time) ([]Appointment, error) {
	return r.filter(from, to, func(Appointment) bool { return true }), nil
}

func (r *MemoryRepository) filter(from, to time.Time, keep func(Appointment) bool) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	window := Interval{Start: from, End: to}
	var out []Appointment
	for _, a := range r.appointments {
		if keep(a) && a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Appointment) int { return a.Start.Compare(b.Start) })
	return out
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	a.ID = uuid.New()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if patch.IfStatus != nil && a.Status != *patch.IfStatus {
		return nil, ErrStatusChanged
	}

	if patch.Start != nil {
		a.Start = *patch.Start
	}
	if patch.ResourceID != nil {
		a.ResourceID = *patch.ResourceID
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.ModifiedBy != nil {
		a.ModifiedBy = patch.ModifiedBy
	}
	a.UpdatedAt = r.now()

	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) GetResource(_ context.Context, id uuid.UUID) (*Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[id]
	if !ok {
		return nil, ErrResourceNotFound
	}
	return &res, nil
}

func (r *MemoryRepository) ListResources(_ context.Context) ([]Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	slices.SortFunc(out, func(a, b Resource) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) GetServiceType(_ context.Context, id uuid.UUID) (*ServiceType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.serviceTypes[id]
	if !ok {
		return nil, ErrServiceTypeNotFound
	}
	return &st, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}
