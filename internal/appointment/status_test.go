package appointment

import (
	"errors"
	"testing"
)

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusScheduled, StatusInProgress, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusScheduled, StatusScheduled, false},
		{StatusInProgress, StatusScheduled, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusInProgress, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusScheduled, Status("confirmed"), false},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: got %v, want ErrInvalidTransition", tt.from, tt.to, err)
		}
	}
}

func TestStatusActive(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusScheduled, StatusInProgress} {
		if !s.Active() || s.Terminal() {
			t.Errorf("%s should be active", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if s.Active() || !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if Status("programada").Valid() {
		t.Error("storage labels must be mapped before reaching the domain")
	}
}
