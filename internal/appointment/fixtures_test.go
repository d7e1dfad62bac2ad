package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/lock"
)

// day is a Monday.
var day = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func clock(hour, minute int) *Clock {
	return &Clock{Hour: hour, Minute: minute}
}

// clinicHours opens Monday to Friday 08:00-18:00 with a 12:00-13:00 break.
func clinicHours(t *testing.T) *WeeklyHours {
	t.Helper()
	days := map[time.Weekday]DayHours{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		days[wd] = DayHours{
			Open:       Clock{Hour: 8},
			Close:      Clock{Hour: 18},
			BreakStart: clock(12, 0),
			BreakEnd:   clock(13, 0),
		}
	}
	h, err := NewWeeklyHours(time.UTC, days)
	if err != nil {
		t.Fatalf("NewWeeklyHours: %v", err)
	}
	return h
}

type fixture struct {
	repo      *MemoryRepository
	scheduler *Scheduler
	roomA     Resource
	roomB     Resource
	station   Resource
	service   ServiceType
	actor     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := NewMemoryRepository()
	return newFixtureWithRepo(t, repo, repo)
}

// newFixtureWithRepo seeds reference data through seed and hands repo to
// the scheduler, so tests can wrap the store with failure injection.
func newFixtureWithRepo(t *testing.T, seed *MemoryRepository, repo Repository) *fixture {
	t.Helper()
	f := &fixture{repo: seed, actor: uuid.New()}
	f.roomA = seed.PutResource(Resource{Name: "Room A", Kind: ResourceConsultationRoom, Capacity: 1, Active: true})
	f.roomB = seed.PutResource(Resource{Name: "Room B", Kind: ResourceConsultationRoom, Capacity: 1, Active: true})
	f.station = seed.PutResource(Resource{Name: "Therapy Station A", Kind: ResourceTherapyStation, Capacity: 3, Active: true})
	f.service = seed.PutServiceType(ServiceType{Name: "Physiotherapy", ResourceKind: ResourceTherapyStation, DefaultMinutes: 45, Active: true})
	f.scheduler = NewScheduler(repo, lock.NewKeyed(time.Second), clinicHours(t), nil, Options{SearchDays: 7})
	return f
}

func (f *fixture) book(t *testing.T, resource Resource, professional uuid.UUID, start time.Time, minutes int) (*Appointment, error) {
	t.Helper()
	return f.scheduler.Create(context.Background(), CreateRequest{
		PatientID:       uuid.New(),
		ProfessionalID:  professional,
		ServiceTypeID:   f.service.ID,
		ResourceID:      resource.ID,
		Start:           start,
		DurationMinutes: &minutes,
		Actor:           f.actor,
	})
}

func (f *fixture) mustBook(t *testing.T, resource Resource, professional uuid.UUID, start time.Time, minutes int) *Appointment {
	t.Helper()
	a, err := f.book(t, resource, professional, start, minutes)
	if err != nil {
		t.Fatalf("book %s at %s: %v", resource.Name, start.Format("15:04"), err)
	}
	return a
}

func booking(resourceID, professionalID uuid.UUID, start time.Time, minutes int, status Status) Appointment {
	return Appointment{
		ID:              uuid.New(),
		ResourceID:      resourceID,
		ProfessionalID:  professionalID,
		Start:           start,
		DurationMinutes: minutes,
		Status:          status,
	}
}

func assertReason(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

// failingRepo wraps a repository and fails chosen operations.
type failingRepo struct {
	Repository
	failInsert bool
	failUpdate bool
	failList   bool
	failEvents bool
}

var errStoreDown = errors.New("connection refused")

func (r *failingRepo) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if r.failInsert {
		return nil, errStoreDown
	}
	return r.Repository.InsertAppointment(ctx, a)
}

func (r *failingRepo) UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	if r.failUpdate {
		return nil, errStoreDown
	}
	return r.Repository.UpdateAppointment(ctx, id, patch)
}

func (r *failingRepo) ListByResource(ctx context.Context, id uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if r.failList {
		return nil, errStoreDown
	}
	return r.Repository.ListByResource(ctx, id, from, to)
}

func (r *failingRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	if r.failEvents {
		return errStoreDown
	}
	return r.Repository.InsertEvent(ctx, ev)
}
