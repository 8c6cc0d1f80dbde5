// Package cache is the local persistent key/value store used as an offline
// fallback. Every implementation initializes itself on first use.
package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrMiss is returned by Get for a missing key.
var ErrMiss = errors.New("cache miss")

type KV interface {
	// Init prepares the backend. Calling it is optional and idempotent.
	Init(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key; a missing key is not an error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	Length(ctx context.Context) (int, error)
}

// lazyInit runs init until it succeeds once.
type lazyInit struct {
	mu   sync.Mutex
	done bool
}

func (l *lazyInit) ensure(ctx context.Context, init func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return nil
	}
	if err := init(ctx); err != nil {
		return err
	}
	l.done = true
	return nil
}
