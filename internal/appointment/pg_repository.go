package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, professional_id, service_type_id, resource_id, start_time,
	duration_minutes, status, notes, created_by, modified_by, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes *string
	var modifiedBy *uuid.UUID

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProfessionalID,
		&a.ServiceTypeID,
		&a.ResourceID,
		&a.Start,
		&a.DurationMinutes,
		&a.Status,
		&notes,
		&a.CreatedBy,
		&modifiedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Notes = notes
	a.ModifiedBy = modifiedBy
	return &a, nil
}

func scanResource(row pgx.Row) (*Resource, error) {
	var r Resource

	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.Kind,
		&r.Capacity,
		&r.Active,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}

	return &r, nil
}

func scanServiceType(row pgx.Row) (*ServiceType, error) {
	var st ServiceType

	err := row.Scan(
		&st.ID,
		&st.Name,
		&st.ResourceKind,
		&st.DefaultMinutes,
		&st.BasePrice,
		&st.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceTypeNotFound
		}
		return nil, err
	}

	return &st, nil
}

func (r *PgRepository) queryAppointments(ctx context.Context, sql string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) ListByResource(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE resource_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, resourceID, from, to)
}

func (r *PgRepository) ListByProfessional(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, professionalID, from, to)
}

func (r *PgRepository) ListAppointments(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time < $2
		  AND end_time > $1
		ORDER BY start_time
	`, from, to)
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// InsertAppointment stores end_time alongside start_time so window queries
// can use the (resource_id, start_time, end_time) index.
func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, professional_id, service_type_id, resource_id,
			start_time, end_time, duration_minutes, status, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+appointmentColumns,
		id, a.PatientID, a.ProfessionalID, a.ServiceTypeID, a.ResourceID,
		a.Start, a.End(), a.DurationMinutes, a.Status, a.Notes, a.CreatedBy)

	return scanAppointment(row)
}

// UpdateAppointment applies patch in one statement. When IfStatus is set and
// no row matches, the row is re-read to tell a missing appointment from a
// status race.
func (r *PgRepository) UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET start_time  = COALESCE($2, start_time),
		    end_time    = COALESCE($2, start_time) + make_interval(mins => duration_minutes),
		    resource_id = COALESCE($3, resource_id),
		    status      = COALESCE($4, status),
		    modified_by = COALESCE($5, modified_by),
		    updated_at  = now()
		WHERE id = $1
		  AND ($6::text IS NULL OR status = $6)
		RETURNING `+appointmentColumns,
		id, patch.Start, patch.ResourceID, patch.Status, patch.ModifiedBy, patch.IfStatus)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) && patch.IfStatus != nil {
		if _, getErr := r.GetAppointment(ctx, id); getErr == nil {
			return nil, ErrStatusChanged
		}
	}
	return a, err
}

func (r *PgRepository) GetResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, kind, capacity, active, created_at
		FROM resources
		WHERE id = $1
	`, id)
	return scanResource(row)
}

func (r *PgRepository) ListResources(ctx context.Context) ([]Resource, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, kind, capacity, active, created_at
		FROM resources
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetServiceType(ctx context.Context, id uuid.UUID) (*ServiceType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, resource_kind, default_minutes, base_price, active
		FROM service_types
		WHERE id = $1
	`, id)
	return scanServiceType(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.ActorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
