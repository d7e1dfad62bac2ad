// Package sqlite is the single-file store used for local development and
// small single-node installs. Timestamps are written as fixed-width UTC
// text so that window filters can compare them as strings.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

//go:embed schema.sql
var schema string

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Open connects to dsn, applies the schema and returns the handle. In-memory
// databases are pinned to one connection so every query sees the same data.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ appointment.Repository = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const appointmentColumns = `id, patient_id, professional_id, service_type_id, resource_id, start_time,
	duration_minutes, status, notes, created_by, modified_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row scanner) (*appointment.Appointment, error) {
	var (
		a                   appointment.Appointment
		start, created, upd string
		status              string
		notes               sql.NullString
		modifiedBy          uuid.NullUUID
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProfessionalID,
		&a.ServiceTypeID,
		&a.ResourceID,
		&start,
		&a.DurationMinutes,
		&status,
		&notes,
		&a.CreatedBy,
		&modifiedBy,
		&created,
		&upd,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appointment.ErrAppointmentNotFound
		}
		return nil, err
	}

	if a.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(upd); err != nil {
		return nil, err
	}
	a.Status = appointment.Status(status)
	if notes.Valid {
		a.Notes = &notes.String
	}
	if modifiedBy.Valid {
		a.ModifiedBy = &modifiedBy.UUID
	}
	return &a, nil
}

func scanResource(row scanner) (*appointment.Resource, error) {
	var res appointment.Resource
	var kind, created string

	if err := row.Scan(&res.ID, &res.Name, &kind, &res.Capacity, &res.Active, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appointment.ErrResourceNotFound
		}
		return nil, err
	}

	res.Kind = appointment.ResourceKind(kind)
	var err error
	if res.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) queryAppointments(ctx context.Context, query string, args ...any) ([]appointment.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []appointment.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *Repository) ListByResource(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE resource_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time
	`, resourceID, formatTime(to), formatTime(from))
}

func (r *Repository) ListByProfessional(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time
	`, professionalID, formatTime(to), formatTime(from))
}

func (r *Repository) ListAppointments(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time < ? AND end_time > ?
		ORDER BY start_time
	`, formatTime(to), formatTime(from))
}

func (r *Repository) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	return scanAppointment(row)
}

func (r *Repository) InsertAppointment(ctx context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	now := formatTime(r.now())

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO appointments (id, patient_id, professional_id, service_type_id, resource_id,
			start_time, end_time, duration_minutes, status, notes, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+appointmentColumns,
		uuid.New(), a.PatientID, a.ProfessionalID, a.ServiceTypeID, a.ResourceID,
		formatTime(a.Start), formatTime(a.End()), a.DurationMinutes, string(a.Status), a.Notes, a.CreatedBy,
		now, now)

	return scanAppointment(row)
}

// UpdateAppointment reads and writes the row in one immediate transaction,
// so the IfStatus comparison and the write see the same state.
func (r *Repository) UpdateAppointment(ctx context.Context, id uuid.UUID, patch appointment.AppointmentPatch) (*appointment.Appointment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanAppointment(tx.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if patch.IfStatus != nil && current.Status != *patch.IfStatus {
		return nil, appointment.ErrStatusChanged
	}

	if patch.Start != nil {
		current.Start = patch.Start.UTC()
	}
	if patch.ResourceID != nil {
		current.ResourceID = *patch.ResourceID
	}
	if patch.Status != nil {
		current.Status = *patch.Status
	}
	if patch.ModifiedBy != nil {
		current.ModifiedBy = patch.ModifiedBy
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE appointments
		SET start_time = ?, end_time = ?, resource_id = ?, status = ?, modified_by = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+appointmentColumns,
		formatTime(current.Start), formatTime(current.End()), current.ResourceID, string(current.Status),
		current.ModifiedBy, formatTime(r.now()), id)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

func (r *Repository) GetResource(ctx context.Context, id uuid.UUID) (*appointment.Resource, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, kind, capacity, active, created_at FROM resources WHERE id = ?
	`, id)
	return scanResource(row)
}

func (r *Repository) ListResources(ctx context.Context) ([]appointment.Resource, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, kind, capacity, active, created_at FROM resources ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []appointment.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	return result, rows.Err()
}

func (r *Repository) GetServiceType(ctx context.Context, id uuid.UUID) (*appointment.ServiceType, error) {
	var st appointment.ServiceType
	var kind string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, resource_kind, default_minutes, base_price, active FROM service_types WHERE id = ?
	`, id).Scan(&st.ID, &st.Name, &kind, &st.DefaultMinutes, &st.BasePrice, &st.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appointment.ErrServiceTypeNotFound
		}
		return nil, err
	}
	st.ResourceKind = appointment.ResourceKind(kind)
	return &st, nil
}

func (r *Repository) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	created := ev.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	var payload *string
	if len(ev.Payload) > 0 {
		s := string(ev.Payload)
		payload = &s
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, actor_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ev.EventType, ev.AppointmentID, ev.ActorID, payload, formatTime(created))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// SaveResource inserts or replaces reference data. Used by the seeder.
func (r *Repository) SaveResource(ctx context.Context, res appointment.Resource) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resources (id, name, kind, capacity, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, kind = excluded.kind, capacity = excluded.capacity, active = excluded.active
	`, res.ID, res.Name, string(res.Kind), res.Capacity, res.Active, formatTime(res.CreatedAt))
	if err != nil {
		return fmt.Errorf("save resource: %w", err)
	}
	return nil
}

func (r *Repository) SaveServiceType(ctx context.Context, st appointment.ServiceType) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO service_types (id, name, resource_kind, default_minutes, base_price, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, resource_kind = excluded.resource_kind,
			default_minutes = excluded.default_minutes, base_price = excluded.base_price, active = excluded.active
	`, st.ID, st.Name, string(st.ResourceKind), st.DefaultMinutes, st.BasePrice, st.Active)
	if err != nil {
		return fmt.Errorf("save service type: %w", err)
	}
	return nil
}
