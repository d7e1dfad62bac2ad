package supabase

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Rows as the hosted database returns them. Every field is decoded loosely
// and converted to the typed entities in the to* functions below.

type citaRow struct {
	ID              string  `json:"id"`
	PacienteID      string  `json:"id_paciente"`
	ProfesionalID   string  `json:"id_profesional"`
	TipoServicioID  string  `json:"id_tipo_servicio"`
	RecursoFisicoID string  `json:"id_recurso_fisico"`
	Inicio          string  `json:"fecha_hora_inicio"`
	Duracion        float64 `json:"duracion_minutos_real"`
	Fin             string  `json:"fecha_hora_fin"`
	Estado          string  `json:"estado"`
	CreadoPor       string  `json:"creado_por_usuario_id"`
	FechaCreacion   string  `json:"fecha_creacion"`
	UltimaModFecha  string  `json:"ultima_modificacion_fecha"`
	UltimaModPor    *string `json:"ultima_modificacion_por_usuario_id"`
	Notas           *string `json:"notas_cita"`
}

type recursoRow struct {
	ID            string  `json:"id"`
	Nombre        string  `json:"nombre_recurso"`
	Tipo          string  `json:"tipo_recurso"`
	Capacidad     float64 `json:"capacidad_simultanea"`
	Activo        bool    `json:"activo"`
	FechaCreacion string  `json:"fecha_creacion"`
}

type tipoServicioRow struct {
	ID          string  `json:"id"`
	Nombre      string  `json:"nombre_servicio"`
	TipoRecurso string  `json:"tipo_recurso_asociado"`
	Duracion    float64 `json:"duracion_estandar_minutos"`
	PrecioBase  float64 `json:"precio_base"`
	Activo      bool    `json:"activo"`
}

type citaInsert struct {
	ID              string  `json:"id"`
	PacienteID      string  `json:"id_paciente"`
	ProfesionalID   string  `json:"id_profesional"`
	TipoServicioID  string  `json:"id_tipo_servicio"`
	RecursoFisicoID string  `json:"id_recurso_fisico"`
	Inicio          string  `json:"fecha_hora_inicio"`
	Duracion        int     `json:"duracion_minutos_real"`
	Fin             string  `json:"fecha_hora_fin"`
	Estado          string  `json:"estado"`
	CreadoPor       string  `json:"creado_por_usuario_id"`
	FechaCreacion   string  `json:"fecha_creacion"`
	UltimaModFecha  string  `json:"ultima_modificacion_fecha"`
	Notas           *string `json:"notas_cita"`
}

type bitacoraInsert struct {
	UsuarioID       *string         `json:"id_usuario"`
	TipoAccion      string          `json:"tipo_accion"`
	Entidad         string          `json:"entidad_afectada"`
	EntidadID       *string         `json:"id_entidad_afectada"`
	Detalles        json.RawMessage `json:"detalles_cambio_json,omitempty"`
	FechaHoraAccion string          `json:"fecha_hora_accion"`
}

var estados = map[string]appointment.Status{
	"programada": appointment.StatusScheduled,
	"en_curso":   appointment.StatusInProgress,
	"completada": appointment.StatusCompleted,
	"cancelada":  appointment.StatusCancelled,
}

var tiposRecurso = map[string]appointment.ResourceKind{
	"consultorio":          appointment.ResourceConsultationRoom,
	"camilla_fisioterapia": appointment.ResourceTherapyStation,
}

func toStatus(estado string) (appointment.Status, error) {
	s, ok := estados[strings.ToLower(strings.TrimSpace(estado))]
	if !ok {
		return "", fmt.Errorf("unknown estado %q", estado)
	}
	return s, nil
}

func fromStatus(s appointment.Status) (string, error) {
	for estado, status := range estados {
		if status == s {
			return estado, nil
		}
	}
	return "", fmt.Errorf("status %q has no estado", s)
}

// toKind passes unknown resource types through so new kinds added in the
// dashboard do not break reads.
func toKind(tipo string) appointment.ResourceKind {
	if k, ok := tiposRecurso[strings.ToLower(tipo)]; ok {
		return k
	}
	return appointment.ResourceKind(tipo)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

// parseTimestamp accepts the formats PostgREST emits for timestamptz and
// timestamp columns. Values without an offset are taken as UTC.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func wholeNumber(f float64, field string) (int, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s is not a whole number: %v", field, f)
	}
	return int(f), nil
}

func toAppointment(r citaRow) (appointment.Appointment, error) {
	var a appointment.Appointment
	var err error

	ids := []struct {
		dst   *uuid.UUID
		raw   string
		field string
	}{
		{&a.ID, r.ID, "id"},
		{&a.PatientID, r.PacienteID, "id_paciente"},
		{&a.ProfessionalID, r.ProfesionalID, "id_profesional"},
		{&a.ServiceTypeID, r.TipoServicioID, "id_tipo_servicio"},
		{&a.ResourceID, r.RecursoFisicoID, "id_recurso_fisico"},
		{&a.CreatedBy, r.CreadoPor, "creado_por_usuario_id"},
	}
	for _, id := range ids {
		if *id.dst, err = uuid.Parse(id.raw); err != nil {
			return a, fmt.Errorf("cita %s: %s: %w", r.ID, id.field, err)
		}
	}

	if a.Start, err = parseTimestamp(r.Inicio); err != nil {
		return a, fmt.Errorf("cita %s: %w", r.ID, err)
	}
	// Rows edited by the old calendar may carry a stale fecha_hora_fin; the
	// duration wins.
	if a.DurationMinutes, err = wholeNumber(r.Duracion, "duracion_minutos_real"); err != nil {
		return a, fmt.Errorf("cita %s: %w", r.ID, err)
	}
	if a.Status, err = toStatus(r.Estado); err != nil {
		return a, fmt.Errorf("cita %s: %w", r.ID, err)
	}
	if a.CreatedAt, err = parseTimestamp(r.FechaCreacion); err != nil {
		return a, fmt.Errorf("cita %s: %w", r.ID, err)
	}
	a.UpdatedAt = a.CreatedAt
	if r.UltimaModFecha != "" {
		if a.UpdatedAt, err = parseTimestamp(r.UltimaModFecha); err != nil {
			return a, fmt.Errorf("cita %s: %w", r.ID, err)
		}
	}
	if r.UltimaModPor != nil && *r.UltimaModPor != "" {
		by, err := uuid.Parse(*r.UltimaModPor)
		if err != nil {
			return a, fmt.Errorf("cita %s: ultima_modificacion_por_usuario_id: %w", r.ID, err)
		}
		a.ModifiedBy = &by
	}
	a.Notes = r.Notas

	return a, nil
}

func toAppointments(rows []citaRow) ([]appointment.Appointment, error) {
	out := make([]appointment.Appointment, 0, len(rows))
	for _, r := range rows {
		a, err := toAppointment(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func toResource(r recursoRow) (appointment.Resource, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return appointment.Resource{}, fmt.Errorf("recurso %s: %w", r.ID, err)
	}
	capacity, err := wholeNumber(r.Capacidad, "capacidad_simultanea")
	if err != nil {
		return appointment.Resource{}, fmt.Errorf("recurso %s: %w", r.ID, err)
	}
	if capacity < 1 {
		capacity = 1
	}

	res := appointment.Resource{
		ID:       id,
		Name:     r.Nombre,
		Kind:     toKind(r.Tipo),
		Capacity: capacity,
		Active:   r.Activo,
	}
	if r.FechaCreacion != "" {
		if res.CreatedAt, err = parseTimestamp(r.FechaCreacion); err != nil {
			return appointment.Resource{}, fmt.Errorf("recurso %s: %w", r.ID, err)
		}
	}
	return res, nil
}

func toServiceType(r tipoServicioRow) (appointment.ServiceType, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return appointment.ServiceType{}, fmt.Errorf("tipo_servicio %s: %w", r.ID, err)
	}
	minutes, err := wholeNumber(r.Duracion, "duracion_estandar_minutos")
	if err != nil {
		return appointment.ServiceType{}, fmt.Errorf("tipo_servicio %s: %w", r.ID, err)
	}
	return appointment.ServiceType{
		ID:             id,
		Name:           r.Nombre,
		ResourceKind:   toKind(r.TipoRecurso),
		DefaultMinutes: minutes,
		BasePrice:      r.PrecioBase,
		Active:         r.Activo,
	}, nil
}

// fromAppointment builds the insert row. creado_por_usuario_id references
// usuarios, so a booking without a creator cannot be stored.
func fromAppointment(a appointment.Appointment, now time.Time) (citaInsert, error) {
	if a.CreatedBy == uuid.Nil {
		return citaInsert{}, fmt.Errorf("creado_por_usuario_id is required")
	}
	estado, err := fromStatus(a.Status)
	if err != nil {
		return citaInsert{}, err
	}
	return citaInsert{
		ID:              a.ID.String(),
		PacienteID:      a.PatientID.String(),
		ProfesionalID:   a.ProfessionalID.String(),
		TipoServicioID:  a.ServiceTypeID.String(),
		RecursoFisicoID: a.ResourceID.String(),
		Inicio:          formatTimestamp(a.Start),
		Duracion:        a.DurationMinutes,
		Fin:             formatTimestamp(a.End()),
		Estado:          estado,
		CreadoPor:       a.CreatedBy.String(),
		FechaCreacion:   formatTimestamp(now),
		UltimaModFecha:  formatTimestamp(now),
		Notas:           a.Notes,
	}, nil
}

func optionalID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
