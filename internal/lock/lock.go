// Package lock provides scoped exclusive locks over sets of string keys.
package lock

import (
	"context"
	"errors"
	"slices"
)

var (
	// ErrNotAcquired is returned when a key stays held past the wait budget.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrUnavailable wraps failures of the lock backend itself.
	ErrUnavailable = errors.New("lock backend unavailable")
)

// Locker runs fn while holding every key in keys. Implementations acquire
// keys in sorted order and release all of them on every exit path.
type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// Normalize sorts keys and drops duplicates and empty entries.
func Normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
