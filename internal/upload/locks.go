package upload

import (
	"context"
	"sync"
)

// Lock serializes every attempt on one upload id. It is a one-slot channel so
// that waiting can be abandoned when the context ends.
type Lock struct {
	id   string
	slot chan struct{}
	reg  *lockRegistry
	refs int // guarded by reg.mu
}

// Acquire blocks until the lock is held or ctx is done. On failure the
// reference taken by LockFor is dropped and Release must not be called.
func (l *Lock) Acquire(ctx context.Context) error {
	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.reg.drop(l)
		return ctx.Err()
	}
}

// Release unlocks and drops the caller's reference.
func (l *Lock) Release() {
	<-l.slot
	l.reg.drop(l)
}

// lockRegistry hands out one Lock per upload id. Entries are reference
// counted and removed once no connection holds or awaits them.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*Lock)}
}

func (r *lockRegistry) get(id string) *Lock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &Lock{id: id, slot: make(chan struct{}, 1), reg: r}
		r.locks[id] = l
	}
	l.refs++
	return l
}

func (r *lockRegistry) drop(l *Lock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs <= 0 && r.locks[l.id] == l {
		delete(r.locks, l.id)
	}
}

func (r *lockRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
