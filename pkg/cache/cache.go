// Package cache memoizes device reads for the lifetime of one transaction.
//
// Many independent readers often need the same `show` output during one edit.
// A ReadContext guarantees that, for a given Key, the loader (and therefore
// the device command) runs at most once until the context is closed.
package cache

import (
	"fmt"
	"sync"
)

// Key identifies a cacheable read.
type Key struct {
	Op            string // read-operation identity, e.g. "cli.read" or a handler path
	Instance      string // reader instance, empty when any reader may share the entry
	Disambiguator string // e.g. the command text or list key
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Op, k.Instance, k.Disambiguator)
}

type entry struct {
	once  sync.Once
	value interface{}
	err   error
	ready bool // guarded by ReadContext.mu
}

// ReadContext is the read-phase scope of one transaction.
type ReadContext struct {
	id string

	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool
	hits    int
	misses  int
}

// NewReadContext creates an empty context. id is used only for logging.
func NewReadContext(id string) *ReadContext {
	return &ReadContext{
		id:      id,
		entries: make(map[Key]*entry),
	}
}

// ID returns the transaction ID the context was created for.
func (rc *ReadContext) ID() string {
	return rc.id
}

// Get returns the cached value for key. Failed loads are not cached.
func (rc *ReadContext) Get(key Key) (interface{}, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return nil, false
	}
	e, ok := rc.entries[key]
	if !ok || !e.ready {
		return nil, false
	}
	return e.value, true
}

// Put stores value under key, replacing any previous value. It is a no-op
// on a closed context.
func (rc *ReadContext) Put(key Key, value interface{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return
	}
	e := &entry{value: value, ready: true}
	e.once.Do(func() {})
	rc.entries[key] = e
}

// GetOrLoad returns the cached value for key, running load on a miss.
// Concurrent callers for the same key wait for a single load. A failed load
// is returned to every waiter and evicted so a later call may retry.
func (rc *ReadContext) GetOrLoad(key Key, load func() (interface{}, error)) (interface{}, error) {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return load()
	}
	e, ok := rc.entries[key]
	if ok {
		rc.hits++
	} else {
		rc.misses++
		e = &entry{}
		rc.entries[key] = e
	}
	rc.mu.Unlock()

	e.once.Do(func() {
		e.value, e.err = load()
	})

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if e.err != nil {
		if rc.entries[key] == e {
			delete(rc.entries, key)
		}
		return nil, e.err
	}
	e.ready = true
	return e.value, nil
}

// Stats returns hit and miss counts of GetOrLoad.
func (rc *ReadContext) Stats() (hits, misses int) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.hits, rc.misses
}

// Len returns the number of cached entries.
func (rc *ReadContext) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.entries)
}

// Close discards every entry. Entries must never outlive their transaction.
func (rc *ReadContext) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries = make(map[Key]*entry)
	rc.closed = true
}
