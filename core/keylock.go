package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// KEY LOCKS - Arena of independently lockable keys
// =============================================================================

// KeyLocks serializes work per string key without a global lock. Entries
// are created on first use and dropped once no goroutine holds or waits on
// them, so the arena stays proportional to live contention.
//
// Lock always acquires keys in ascending order, so two callers with
// overlapping key sets cannot deadlock.
type KeyLocks struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	key  string
	ch   chan struct{}
	refs int
}

func NewKeyLocks() *KeyLocks {
	return &KeyLocks{entries: make(map[string]*keyEntry)}
}

// Lock acquires every key. If any key cannot be acquired within wait (zero
// means wait until ctx is done), every key already taken is released and
// ErrConcurrencyConflict is returned. The returned unlock is idempotent.
func (l *KeyLocks) Lock(ctx context.Context, wait time.Duration, keys ...string) (func(), error) {
	keys = sortedUnique(keys)

	var deadline <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}

	held := make([]*keyEntry, 0, len(keys))
	for _, k := range keys {
		e := l.ref(k)
		select {
		case e.ch <- struct{}{}:
			held = append(held, e)
		case <-ctx.Done():
			l.unref(e)
			l.release(held)
			return nil, ctx.Err()
		case <-deadline:
			l.unref(e)
			l.release(held)
			return nil, Conflict("timed out waiting for lock %s", k)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(held) })
	}, nil
}

// Len returns the number of live entries. Used by tests to check that the
// arena does not leak.
func (l *KeyLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *KeyLocks) ref(k string) *keyEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[k]
	if !ok {
		e = &keyEntry{key: k, ch: make(chan struct{}, 1)}
		l.entries[k] = e
	}
	e.refs++
	return e
}

func (l *KeyLocks) unref(e *keyEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, e.key)
	}
}

func (l *KeyLocks) release(held []*keyEntry) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i].ch
		l.unref(held[i])
	}
}

func sortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
