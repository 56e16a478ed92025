package library

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// lockTable hands out one exclusive lock per book ID so that circulation
// transitions for the same book serialize while different books proceed
// independently. Entries are reference-counted and dropped once the last
// waiter is gone, so the table stays proportional to in-flight work.
type lockTable struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[int64]*lockEntry)}
}

// acquire blocks until the lock for key is held, the timeout elapses
// (ErrLockTimeout, retryable), or ctx is done. On success the returned
// function releases the lock and must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, key int64, timeout time.Duration) (func(), error) {
	t.mu.Lock()
	e := t.entries[key]
	if e == nil {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				t.unref(key)
			})
		}, nil
	case <-timer.C:
		t.unref(key)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		t.unref(key)
		return nil, fmt.Errorf("waiting for book %d lock: %w", key, ctx.Err())
	}
}

func (t *lockTable) unref(key int64) {
	t.mu.Lock()
	if e := t.entries[key]; e != nil {
		e.refs--
		if e.refs == 0 {
			delete(t.entries, key)
		}
	}
	t.mu.Unlock()
}
