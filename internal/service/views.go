package service

import (
	"sync"
	"time"
)

// viewCache keeps one computed per view key so repeated lookups share the
// memoized value.
type viewCache struct {
	mu    sync.Mutex
	views map[string]any
}

func newViewCache() *viewCache {
	return &viewCache{views: make(map[string]any)}
}

func memo[T any](c *viewCache, key string, build func() T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.views[key]; ok {
		return v.(T)
	}
	v := build()
	c.views[key] = v
	return v
}

// dayClock versions the local calendar date, so date-dependent views
// recompute after midnight.
type dayClock struct {
	now func() time.Time
}

func (d *dayClock) Version() uint64 {
	t := d.now()
	y, m, day := t.Date()
	return uint64(time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
