package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/lock"
)

var monday = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type testServer struct {
	handler http.Handler
	repo    *appointment.MemoryRepository
	room    appointment.Resource
	service appointment.ServiceType
	actor   uuid.UUID
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()

	repo := appointment.NewMemoryRepository()
	room := repo.PutResource(appointment.Resource{Name: "Consultorio 1", Kind: appointment.ResourceConsultationRoom, Capacity: 1, Active: true})
	service := repo.PutServiceType(appointment.ServiceType{Name: "Consulta", ResourceKind: appointment.ResourceConsultationRoom, DefaultMinutes: 45, Active: true})

	hours, err := appointment.NewWeeklyHours(time.UTC, map[time.Weekday]appointment.DayHours{
		time.Monday: {Open: appointment.Clock{Hour: 8}, Close: appointment.Clock{Hour: 18}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Scheduler == nil {
		cfg.Scheduler = appointment.NewScheduler(repo, lock.NewKeyed(time.Second), hours, nil, appointment.Options{})
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return at(7, 0) }
	}
	return &testServer{handler: NewRouter(cfg), repo: repo, room: room, service: service, actor: uuid.New()}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", s.actor.String())
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createBody(professional uuid.UUID, start time.Time) map[string]any {
	return map[string]any{
		"patient_id":      uuid.NewString(),
		"professional_id": professional.String(),
		"service_type_id": s.service.ID.String(),
		"resource_id":     s.room.ID.String(),
		"start":           start.Format(time.RFC3339),
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateAppointment(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	actor := uuid.New()

	rec := s.do(t, http.MethodPost, "/appointments", s.createBody(uuid.New(), at(9, 0)), "X-User-ID", actor.String())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	resp := decodeBody[AppointmentResponse](t, rec)
	if resp.Status != "scheduled" || resp.DurationMinutes != 45 || !resp.End.Equal(at(9, 45)) {
		t.Errorf("resp = %+v", resp)
	}
	if resp.CreatedBy != actor {
		t.Errorf("created_by = %s, want %s", resp.CreatedBy, actor)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestCreateRejectionCarriesConflictsAndSuggestion(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	first := decodeBody[AppointmentResponse](t, s.do(t, http.MethodPost, "/appointments", s.createBody(uuid.New(), at(9, 0))))

	rec := s.do(t, http.MethodPost, "/appointments", s.createBody(uuid.New(), at(9, 30)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "resource_capacity_exceeded" || resp.Retryable {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Conflicts) != 1 || resp.Conflicts[0] != first.ID {
		t.Errorf("conflicts = %v, want [%s]", resp.Conflicts, first.ID)
	}
	if resp.SuggestedSlot == nil || !resp.SuggestedSlot.Start.Equal(at(9, 45)) {
		t.Errorf("suggested slot = %+v, want 09:45", resp.SuggestedSlot)
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	badID := s.createBody(uuid.New(), at(9, 0))
	badID["patient_id"] = "nope"

	zero := s.createBody(uuid.New(), at(9, 0))
	zero["duration_minutes"] = 0

	noStart := s.createBody(uuid.New(), at(9, 0))
	delete(noStart, "start")

	unknownResource := s.createBody(uuid.New(), at(9, 0))
	unknownResource["resource_id"] = uuid.NewString()

	tooLong := s.createBody(uuid.New(), at(9, 0))
	tooLong["duration_minutes"] = 310_000_000

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"invalid uuid", badID, http.StatusBadRequest, "invalid_patient_id"},
		{"zero duration", zero, http.StatusUnprocessableEntity, "invalid_interval"},
		{"duration past one day", tooLong, http.StatusUnprocessableEntity, "invalid_interval"},
		{"missing start", noStart, http.StatusBadRequest, "invalid_start"},
		{"unknown resource", unknownResource, http.StatusNotFound, "not_found"},
		{"not json", "[", http.StatusBadRequest, "invalid_request_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/appointments", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if got := decodeBody[ErrorResponse](t, rec).Error; got != tt.code {
				t.Errorf("error = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestCreateRequiresActor(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	rec := s.do(t, http.MethodPost, "/appointments", s.createBody(uuid.New(), at(9, 0)), "X-User-ID", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%s)", rec.Code, rec.Body)
	}
	if got := decodeBody[ErrorResponse](t, rec).Error; got != "actor_required" {
		t.Errorf("error = %q, want actor_required", got)
	}
	if got, _ := s.repo.ListAppointments(context.Background(), at(0, 0), at(23, 0)); len(got) != 0 {
		t.Errorf("anonymous booking stored: %+v", got)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	created := decodeBody[AppointmentResponse](t, s.do(t, http.MethodPost, "/appointments", s.createBody(uuid.New(), at(9, 0))))
	base := "/appointments/" + created.ID.String()

	rec := s.do(t, http.MethodPost, base+"/reschedule", map[string]any{"start": at(11, 0).Format(time.RFC3339)})
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule status = %d, body = %s", rec.Code, rec.Body)
	}
	if moved := decodeBody[AppointmentResponse](t, rec); !moved.Start.Equal(at(11, 0)) {
		t.Errorf("start after reschedule = %s", moved.Start)
	}

	rec = s.do(t, http.MethodPost, base+"/status", map[string]string{"status": "in_progress"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status change = %d, body = %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodPost, base+"/status", map[string]string{"status": "scheduled"})
	if rec.Code != http.StatusConflict || decodeBody[ErrorResponse](t, rec).Error != "invalid_transition" {
		t.Errorf("backwards transition = %d %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodPost, base+"/status", map[string]string{"status": "paused"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, base+"/cancel", nil)
	if rec.Code != http.StatusOK || decodeBody[AppointmentResponse](t, rec).Status != "cancelled" {
		t.Errorf("cancel = %d %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodGet, base, nil)
	if rec.Code != http.StatusOK || decodeBody[AppointmentResponse](t, rec).Status != "cancelled" {
		t.Errorf("get = %d %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/appointments/42", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id = %d", rec.Code)
	}
}

func TestListAppointments(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	for _, h := range []int{9, 11, 14} {
		if rec := s.do(t, http.MethodPost, "/appointments", s.createBody(uuid.New(), at(h, 0))); rec.Code != http.StatusCreated {
			t.Fatalf("seed booking: %d %s", rec.Code, rec.Body)
		}
	}

	rec := s.do(t, http.MethodGet, "/appointments?from=2025-03-03&to=2025-03-03", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	resp := decodeBody[ListAppointmentsResponse](t, rec)
	if len(resp.Appointments) != 3 || !resp.To.Equal(monday.AddDate(0, 0, 1)) {
		t.Errorf("got %d appointments to %s", len(resp.Appointments), resp.To)
	}

	path := fmt.Sprintf("/appointments?from=%s&to=%s", at(10, 0).Format(time.RFC3339), at(12, 0).Format(time.RFC3339))
	if resp := decodeBody[ListAppointmentsResponse](t, s.do(t, http.MethodGet, path, nil)); len(resp.Appointments) != 1 {
		t.Errorf("got %d appointments in 10:00-12:00, want 1", len(resp.Appointments))
	}

	if rec := s.do(t, http.MethodGet, "/appointments?from=2025-03-03", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing to = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/appointments?from=2025-03-04&to=2025-03-02", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("reversed window = %d", rec.Code)
	}
}

func TestNextSlot(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	s.do(t, http.MethodPost, "/appointments", s.createBody(uuid.New(), at(8, 0)))

	rec := s.do(t, http.MethodGet, "/resources/"+s.room.ID.String()+"/next-slot?duration_minutes=30", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	resp := decodeBody[NextSlotResponse](t, rec)
	if resp.Slot == nil || !resp.Slot.Start.Equal(at(8, 45)) {
		t.Errorf("slot = %+v, want 08:45", resp.Slot)
	}

	rec = s.do(t, http.MethodGet, "/resources/"+s.room.ID.String()+"/next-slot?duration_minutes=0", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero length = %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/resources/"+s.room.ID.String()+"/next-slot?duration_minutes=9223372036854", nil)
	if rec.Code != http.StatusUnprocessableEntity || decodeBody[ErrorResponse](t, rec).Error != "invalid_interval" {
		t.Errorf("overflowing length = %d %s", rec.Code, rec.Body)
	}
	rec = s.do(t, http.MethodGet, "/resources/"+s.room.ID.String()+"/next-slot?duration_minutes=30&after=tomorrow", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad after = %d", rec.Code)
	}
}

type failingScheduler struct {
	Scheduler
	err error
}

func (f failingScheduler) GetAppointment(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	return nil, f.err
}

func TestInfrastructureErrorsAreRetryableAndOpaque(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"persistence", fmt.Errorf("%w: list: dial tcp 10.0.0.5:5432: refused", appointment.ErrPersistence), http.StatusServiceUnavailable, "persistence_failure"},
		{"busy", fmt.Errorf("%w: resource:x", appointment.ErrBusy), http.StatusConflict, "busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, RouterConfig{Scheduler: failingScheduler{err: tt.err}})
			rec := s.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			resp := decodeBody[ErrorResponse](t, rec)
			if resp.Error != tt.code || !resp.Retryable {
				t.Errorf("resp = %+v", resp)
			}
			if bytes.Contains(rec.Body.Bytes(), []byte("10.0.0.5")) {
				t.Error("storage details leaked into response")
			}
		})
	}
}
