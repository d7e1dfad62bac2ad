package appointment

var transitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Active statuses hold resource capacity and professional time.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusInProgress
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns a Rejection wrapping ErrInvalidTransition when
// from cannot move to to.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return reject(ErrInvalidTransition, "unknown status %q", to)
	}
	if !from.CanTransitionTo(to) {
		return reject(ErrInvalidTransition, "%s -> %s", from, to)
	}
	return nil
}
