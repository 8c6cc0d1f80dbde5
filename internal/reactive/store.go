// Package reactive holds observable in-memory state and memoized derivations over it.
package reactive

import (
	"sync"
)

// Versioned is anything whose value changes are counted.
type Versioned interface {
	Version() uint64
}

// Observable is the read-only face of a Store or Computed.
type Observable[T any] interface {
	Versioned
	Get() T
	// Subscribe registers fn for every later change. fn must not write to
	// the same store. The returned func unregisters it and is idempotent.
	Subscribe(fn func(T)) func()
}

// Store is a mutex-guarded value with change notification. Only the owner
// holds the *Store; readers get the Observable from ReadOnly.
type Store[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64

	// serializes notification so subscribers see changes in order
	notifyMu sync.Mutex
	subs     subscribers[T]
}

func NewStore[T any](initial T) *Store[T] {
	return &Store[T]{value: initial}
}

func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *Store[T]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Set replaces the value and notifies subscribers.
func (s *Store[T]) Set(v T) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.value = v
	s.version++
	s.mu.Unlock()

	s.subs.notify(v)
}

// Update applies fn to the current value atomically with respect to other
// writers and returns the new value.
func (s *Store[T]) Update(fn func(T) T) T {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	v := fn(s.value)
	s.value = v
	s.version++
	s.mu.Unlock()

	s.subs.notify(v)
	return v
}

func (s *Store[T]) Subscribe(fn func(T)) func() {
	return s.subs.add(fn)
}

// ReadOnly hides the write methods.
func (s *Store[T]) ReadOnly() Observable[T] {
	return readOnly[T]{s}
}

type readOnly[T any] struct {
	s *Store[T]
}

func (r readOnly[T]) Get() T                      { return r.s.Get() }
func (r readOnly[T]) Version() uint64             { return r.s.Version() }
func (r readOnly[T]) Subscribe(fn func(T)) func() { return r.s.Subscribe(fn) }

// subscribers is a copy-on-write callback list keyed by registration.
type subscribers[T any] struct {
	mu      sync.Mutex
	next    uint64
	entries []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

func (l *subscribers[T]) add(fn func(T)) func() {
	l.mu.Lock()
	l.next++
	id := l.next
	entries := make([]subscriber[T], len(l.entries), len(l.entries)+1)
	copy(entries, l.entries)
	l.entries = append(entries, subscriber[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *subscribers[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]subscriber[T], 0, len(l.entries))
	for _, e := range l.entries {
		if e.id != id {
			entries = append(entries, e)
		}
	}
	l.entries = entries
}

func (l *subscribers[T]) get() []subscriber[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

func (l *subscribers[T]) notify(v T) {
	for _, e := range l.get() {
		e.fn(v)
	}
}
