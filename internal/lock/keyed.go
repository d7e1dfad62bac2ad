package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type slot struct {
	ch   chan struct{}
	refs int
}

// Keyed is an in-process Locker. Keys that are not held cost nothing;
// entries are dropped once no goroutine references them.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

// NewKeyed returns a Keyed locker that gives up on a key after wait.
// A zero wait only honours ctx.
func NewKeyed(wait time.Duration) *Keyed {
	return &Keyed{slots: make(map[string]*slot), wait: wait}
}

func (k *Keyed) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = Normalize(keys)

	acquireCtx := ctx
	if k.wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, k.wait)
		defer cancel()
	}

	held := make([]string, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.release(held[i])
		}
	}()

	for _, key := range keys {
		s := k.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, key)
		case <-acquireCtx.Done():
			k.unref(key)
			return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, acquireCtx.Err())
		}
	}

	return fn(ctx)
}

func (k *Keyed) ref(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *Keyed) unref(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *Keyed) release(key string) {
	k.mu.Lock()
	s := k.slots[key]
	k.mu.Unlock()
	<-s.ch
	k.unref(key)
}
