// Package supabase stores appointments in the clinic's hosted Supabase
// database, reading and writing its original citas, recursos_fisicos,
// tipos_servicio and bitacora_actividad tables through PostgREST.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

const (
	tableCitas         = "citas"
	tableRecursos      = "recursos_fisicos"
	tableTiposServicio = "tipos_servicio"
	tableBitacora      = "bitacora_actividad"
)

// Querier is satisfied by both *supa.Client and *postgrest.Client.
type Querier interface {
	From(table string) *postgrest.QueryBuilder
}

func NewClient(url, key string) (*supa.Client, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return client, nil
}

type Repository struct {
	db  Querier
	now func() time.Time
}

var _ appointment.Repository = (*Repository)(nil)

func NewRepository(db Querier) *Repository {
	return &Repository{db: db, now: time.Now}
}

var ascending = &postgrest.OrderOpts{Ascending: true}

func decode[T any](data []byte, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// Ping issues a one-row read so readiness checks reach the database.
func (r *Repository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := r.db.From(tableRecursos).Select("id", "", false).Limit(1, "").Execute()
	return err
}

func (r *Repository) citasOverlapping(column, id string, from, to time.Time) ([]appointment.Appointment, error) {
	q := r.db.From(tableCitas).
		Select("*", "", false).
		Lt("fecha_hora_inicio", formatTimestamp(to)).
		Gt("fecha_hora_fin", formatTimestamp(from))
	if column != "" {
		q = q.Eq(column, id)
	}

	data, _, err := q.Order("fecha_hora_inicio", ascending).Execute()
	rows, err := decode[citaRow](data, err)
	if err != nil {
		return nil, err
	}
	return toAppointments(rows)
}

func (r *Repository) ListByResource(_ context.Context, resourceID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	return r.citasOverlapping("id_recurso_fisico", resourceID.String(), from, to)
}

func (r *Repository) ListByProfessional(_ context.Context, professionalID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	return r.citasOverlapping("id_profesional", professionalID.String(), from, to)
}

func (r *Repository) ListAppointments(_ context.Context, from, to time.Time) ([]appointment.Appointment, error) {
	return r.citasOverlapping("", "", from, to)
}

func (r *Repository) GetAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	data, _, err := r.db.From(tableCitas).Select("*", "", false).Eq("id", id.String()).Execute()
	rows, err := decode[citaRow](data, err)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, appointment.ErrAppointmentNotFound
	}
	a, err := toAppointment(rows[0])
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) InsertAppointment(_ context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	a.ID = uuid.New()
	row, err := fromAppointment(a, r.now())
	if err != nil {
		return nil, err
	}

	data, _, err := r.db.From(tableCitas).Insert(row, false, "", "representation", "").Execute()
	rows, err := decode[citaRow](data, err)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("insert cita returned no row")
	}
	created, err := toAppointment(rows[0])
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateAppointment reads the row first when the start moves, since
// fecha_hora_fin must be rewritten from the stored duration.
func (r *Repository) UpdateAppointment(ctx context.Context, id uuid.UUID, patch appointment.AppointmentPatch) (*appointment.Appointment, error) {
	values := map[string]any{
		"ultima_modificacion_fecha": formatTimestamp(r.now()),
	}

	if patch.Start != nil {
		current, err := r.GetAppointment(ctx, id)
		if err != nil {
			return nil, err
		}
		current.Start = *patch.Start
		values["fecha_hora_inicio"] = formatTimestamp(current.Start)
		values["fecha_hora_fin"] = formatTimestamp(current.End())
	}
	if patch.ResourceID != nil {
		values["id_recurso_fisico"] = patch.ResourceID.String()
	}
	if patch.Status != nil {
		estado, err := fromStatus(*patch.Status)
		if err != nil {
			return nil, err
		}
		values["estado"] = estado
	}
	if patch.ModifiedBy != nil {
		values["ultima_modificacion_por_usuario_id"] = patch.ModifiedBy.String()
	}

	q := r.db.From(tableCitas).Update(values, "representation", "").Eq("id", id.String())
	if patch.IfStatus != nil {
		estado, err := fromStatus(*patch.IfStatus)
		if err != nil {
			return nil, err
		}
		q = q.Eq("estado", estado)
	}

	data, _, err := q.Execute()
	rows, err := decode[citaRow](data, err)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if patch.IfStatus != nil {
			if _, getErr := r.GetAppointment(ctx, id); getErr == nil {
				return nil, appointment.ErrStatusChanged
			}
		}
		return nil, appointment.ErrAppointmentNotFound
	}

	updated, err := toAppointment(rows[0])
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *Repository) GetResource(_ context.Context, id uuid.UUID) (*appointment.Resource, error) {
	data, _, err := r.db.From(tableRecursos).Select("*", "", false).Eq("id", id.String()).Execute()
	rows, err := decode[recursoRow](data, err)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, appointment.ErrResourceNotFound
	}
	res, err := toResource(rows[0])
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) ListResources(_ context.Context) ([]appointment.Resource, error) {
	data, _, err := r.db.From(tableRecursos).Select("*", "", false).Order("fecha_creacion", ascending).Execute()
	rows, err := decode[recursoRow](data, err)
	if err != nil {
		return nil, err
	}

	out := make([]appointment.Resource, 0, len(rows))
	for _, row := range rows {
		res, err := toResource(row)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Repository) GetServiceType(_ context.Context, id uuid.UUID) (*appointment.ServiceType, error) {
	data, _, err := r.db.From(tableTiposServicio).Select("*", "", false).Eq("id", id.String()).Execute()
	rows, err := decode[tipoServicioRow](data, err)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, appointment.ErrServiceTypeNotFound
	}
	st, err := toServiceType(rows[0])
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *Repository) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	created := ev.CreatedAt
	if created.IsZero() {
		created = r.now()
	}

	row := bitacoraInsert{
		UsuarioID:       optionalID(ev.ActorID),
		TipoAccion:      ev.EventType,
		Entidad:         "CITA",
		EntidadID:       optionalID(ev.AppointmentID),
		Detalles:        ev.Payload,
		FechaHoraAccion: formatTimestamp(created),
	}

	if _, _, err := r.db.From(tableBitacora).Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("insert bitacora_actividad: %w", err)
	}
	return nil
}
