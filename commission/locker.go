package commission

import (
	"context"
	"fmt"
	"sync"
)

// DealLocker grants exclusive access to one deal's commission set. Two
// recalculations of the same deal never interleave; different deals never
// wait on each other.
type DealLocker interface {
	Lock(ctx context.Context, id DealID) (unlock func(), err error)
}

// KeyedLocker is an in-process DealLocker: one mutex per deal, reference
// counted so idle deals hold no memory.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[DealID]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{} // buffered(1); holding the token means holding the lock
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[DealID]*keyedEntry)}
}

// Lock blocks until the deal is free or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, id DealID) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, e)
		return nil, fmt.Errorf("%w: deal %s: %v", ErrLockTimeout, id, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(id, e)
		})
	}, nil
}

func (l *KeyedLocker) release(id DealID, e *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}
