package reactive

import (
	"slices"
	"sync"
)

// Computed is a memoized derivation. It recomputes on read, and only when
// the version of some dependency moved since the last computation.
type Computed[T any] struct {
	compute func() T
	deps    []Versioned

	mu       sync.Mutex
	valid    bool
	seen     []uint64
	value    T
	version  uint64
	computes int
}

var _ Observable[int] = (*Computed[int])(nil)

// NewComputed derives a value from deps. compute must read only deps.
func NewComputed[T any](compute func() T, deps ...Versioned) *Computed[T] {
	return &Computed[T]{compute: compute, deps: deps}
}

func (c *Computed[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return c.value
}

func (c *Computed[T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return c.version
}

// Computations reports how many times compute ran.
func (c *Computed[T]) Computations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computes
}

func (c *Computed[T]) refreshLocked() {
	current := make([]uint64, len(c.deps))
	for i, d := range c.deps {
		current[i] = d.Version()
	}
	if c.valid && slices.Equal(current, c.seen) {
		return
	}
	c.value = c.compute()
	c.seen = current
	c.valid = true
	c.version++
	c.computes++
}

// Subscribe calls fn with the fresh value whenever a dependency that is
// itself observable changes.
func (c *Computed[T]) Subscribe(fn func(T)) func() {
	var cancels []func()
	for _, d := range c.deps {
		if s, ok := d.(interface{ subscribeAny(func()) func() }); ok {
			cancels = append(cancels, s.subscribeAny(func() { fn(c.Get()) }))
		}
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (c *Computed[T]) subscribeAny(fn func()) func() {
	return c.Subscribe(func(T) { fn() })
}

func (s *Store[T]) subscribeAny(fn func()) func() {
	return s.Subscribe(func(T) { fn() })
}

func (r readOnly[T]) subscribeAny(fn func()) func() {
	return r.s.subscribeAny(fn)
}
