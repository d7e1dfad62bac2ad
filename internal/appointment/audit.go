package appointment

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ViolationKind string

const (
	ViolationCapacity            ViolationKind = "capacity"
	ViolationProfessionalOverlap ViolationKind = "professional_overlap"
)

// Violation describes a stretch of time where stored bookings break a
// scheduling rule. SubjectID is the resource or the professional.
type Violation struct {
	Kind           ViolationKind `json:"kind"`
	SubjectID      uuid.UUID     `json:"subject_id"`
	Span           Interval      `json:"span"`
	Peak           int           `json:"peak"`
	Limit          int           `json:"limit"`
	AppointmentIDs []uuid.UUID   `json:"appointment_ids"`
}

// AuditCapacity re-checks every active appointment overlapping [from, to)
// against resource capacity and professional exclusivity. Rows written
// outside the scheduler are the usual source of violations.
func (s *Scheduler) AuditCapacity(ctx context.Context, from, to time.Time) ([]Violation, error) {
	if !to.After(from) {
		return nil, reject(ErrInvalidInterval, "audit window %s", Interval{Start: from, End: to})
	}

	list, err := s.repo.ListAppointments(ctx, from, to)
	if err != nil {
		return nil, persistenceErr("list appointments", err)
	}
	resources, err := s.repo.ListResources(ctx)
	if err != nil {
		return nil, persistenceErr("list resources", err)
	}
	capacity := make(map[uuid.UUID]int, len(resources))
	for _, r := range resources {
		capacity[r.ID] = r.Capacity
	}

	byResource := map[uuid.UUID][]Appointment{}
	byProfessional := map[uuid.UUID][]Appointment{}
	for _, a := range list {
		if !a.Status.Active() {
			continue
		}
		byResource[a.ResourceID] = append(byResource[a.ResourceID], a)
		byProfessional[a.ProfessionalID] = append(byProfessional[a.ProfessionalID], a)
	}

	var out []Violation
	for resourceID, bookings := range byResource {
		limit, ok := capacity[resourceID]
		if !ok {
			s.log.Warn("appointments reference unknown resource", zap.Stringer("resource_id", resourceID),
				zap.Int("appointments", len(bookings)))
			continue
		}
		for _, o := range overloads(bookings, limit) {
			out = append(out, Violation{Kind: ViolationCapacity, SubjectID: resourceID, Span: o.span,
				Peak: o.peak, Limit: limit, AppointmentIDs: o.ids})
		}
	}
	for professionalID, bookings := range byProfessional {
		for _, o := range overloads(bookings, 1) {
			out = append(out, Violation{Kind: ViolationProfessionalOverlap, SubjectID: professionalID, Span: o.span,
				Peak: o.peak, Limit: 1, AppointmentIDs: o.ids})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Span.Start.Equal(out[j].Span.Start) {
			return out[i].Span.Start.Before(out[j].Span.Start)
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return bytes.Compare(out[i].SubjectID[:], out[j].SubjectID[:]) < 0
	})

	s.log.Info("capacity audit finished", zap.Time("from", from), zap.Time("to", to),
		zap.Int("appointments", len(list)), zap.Int("violations", len(out)))
	return out, nil
}

type overload struct {
	span Interval
	peak int
	ids  []uuid.UUID
}

type bookingEdge struct {
	at    time.Time
	delta int
	id    uuid.UUID
}

// overloads returns the maximal stretches where more than limit bookings
// are held at once, with every booking involved in each stretch. Edges at
// the same instant are applied together so touching stretches merge.
func overloads(bookings []Appointment, limit int) []overload {
	edges := make([]bookingEdge, 0, len(bookings)*2)
	for _, a := range bookings {
		edges = append(edges,
			bookingEdge{at: a.Start, delta: 1, id: a.ID},
			bookingEdge{at: a.End(), delta: -1, id: a.ID})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at.Equal(edges[j].at) {
			return edges[i].delta < edges[j].delta
		}
		return edges[i].at.Before(edges[j].at)
	})

	var (
		out    []overload
		cur    *overload
		seen   map[uuid.UUID]bool
		active = map[uuid.UUID]bool{}
	)
	for i := 0; i < len(edges); {
		instant := edges[i].at
		for ; i < len(edges) && edges[i].at.Equal(instant); i++ {
			if edges[i].delta < 0 {
				delete(active, edges[i].id)
			} else {
				active[edges[i].id] = true
			}
		}

		n := len(active)
		switch {
		case n > limit && cur == nil:
			cur = &overload{span: Interval{Start: instant}}
			seen = map[uuid.UUID]bool{}
		case n <= limit && cur != nil:
			cur.span.End = instant
			slices.SortFunc(cur.ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
			out = append(out, *cur)
			cur = nil
			continue
		}

		if cur == nil {
			continue
		}
		if n > cur.peak {
			cur.peak = n
		}
		for id := range active {
			if !seen[id] {
				seen[id] = true
				cur.ids = append(cur.ids, id)
			}
		}
	}
	return out
}
