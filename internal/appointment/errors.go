package appointment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidInterval          = errors.New("invalid interval")
	ErrProfessionalConflict     = errors.New("professional already booked in this interval")
	ErrResourceCapacityExceeded = errors.New("resource capacity exceeded")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrResourceInactive         = errors.New("resource is not active")
	ErrNotFound                 = errors.New("not found")
	ErrPersistence              = errors.New("persistence failure")
	ErrBusy                     = errors.New("scheduling keys are busy, please retry")
)

// Rejection is returned when a request is refused on domain grounds. It
// unwraps to one of the sentinel errors above.
type Rejection struct {
	Reason      error
	Detail      string
	Conflicts   []uuid.UUID
	Suggested   *Interval
	Appointment *Appointment
}

func reject(reason error, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return r.Reason.Error()
	}
	return r.Reason.Error() + ": " + r.Detail
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

// Retryable reports whether the caller may repeat the same request
// unmodified. Only infrastructure failures qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrBusy)
}

// Kind returns a stable snake_case label for err, used in API responses and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInterval):
		return "invalid_interval"
	case errors.Is(err, ErrProfessionalConflict):
		return "professional_conflict"
	case errors.Is(err, ErrResourceCapacityExceeded):
		return "resource_capacity_exceeded"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrResourceInactive):
		return "resource_inactive"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	}
	return "internal_error"
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
