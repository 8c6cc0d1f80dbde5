package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps [][]Snapshot
}

func (r *snapshotRecorder) record(docs []Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, docs)
}

func (r *snapshotRecorder) last() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestMemoryStore_SetMerges(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "clientes", "x", Document{"activo": true, "objetivo": "lose_weight"}))
	require.NoError(t, s.Set(ctx, "clientes", "x", Document{"activo": false}))

	doc, ok, err := s.Get(ctx, "clientes", "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, false, doc["activo"])
	assert.Equal(t, "lose_weight", doc["objetivo"])
}

func TestMemoryStore_CreateAssignsID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.Create(ctx, "rutinas", Document{"nombre": "Full body"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	docs, err := s.List(ctx, "rutinas")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
}

func TestMemoryStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "rutinas", "r1", Document{"nombre": "A"}))

	require.NoError(t, s.Delete(ctx, "rutinas", "r1"))
	require.NoError(t, s.Delete(ctx, "rutinas", "r1"))
	require.NoError(t, s.Delete(ctx, "nada", "r1"))

	_, ok, err := s.Get(ctx, "rutinas", "r1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_EmptyIDRejected(t *testing.T) {
	s := NewMemoryStore()
	assert.ErrorIs(t, s.Set(context.Background(), "c", "", Document{}), ErrInvalidID)
	assert.ErrorIs(t, s.Delete(context.Background(), "c", ""), ErrInvalidID)
}

func TestMemoryStore_ReturnedDocumentsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "c", "1", Document{"nombre": "A"}))

	doc, _, _ := s.Get(ctx, "c", "1")
	doc["nombre"] = "B"

	again, _, _ := s.Get(ctx, "c", "1")
	assert.Equal(t, "A", again["nombre"])
}

func TestMemoryStore_WatchCollectionEmitsFullSets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "c", "1", Document{"n": 1}))

	rec := &snapshotRecorder{}
	require.NoError(t, s.WatchCollection(ctx, "c", rec.record, nil))

	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Set(ctx, "c", "2", Document{"n": 2}))
	require.Eventually(t, func() bool { return len(rec.last()) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Delete(ctx, "c", "1"))
	require.Eventually(t, func() bool {
		last := rec.last()
		return len(last) == 1 && last[0].ID == "2"
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_WatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewMemoryStore()

	rec := &snapshotRecorder{}
	require.NoError(t, s.WatchCollection(ctx, "c", rec.record, nil))
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.watchers["c"]) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Set(context.Background(), "c", "1", Document{}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestMemoryStore_WatchDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()

	var mu sync.Mutex
	var got []*Snapshot
	require.NoError(t, s.WatchDocument(ctx, "c", "x", func(doc *Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, doc)
	}, nil))

	lastDoc := func() (*Snapshot, int) {
		mu.Lock()
		defer mu.Unlock()
		if len(got) == 0 {
			return nil, 0
		}
		return got[len(got)-1], len(got)
	}

	require.Eventually(t, func() bool { _, n := lastDoc(); return n == 1 }, time.Second, 5*time.Millisecond)
	doc, _ := lastDoc()
	assert.Nil(t, doc)

	require.NoError(t, s.Set(ctx, "c", "other", Document{}))
	require.NoError(t, s.Set(ctx, "c", "x", Document{"nombre": "X"}))
	require.Eventually(t, func() bool { d, _ := lastDoc(); return d != nil }, time.Second, 5*time.Millisecond)

	doc, n := lastDoc()
	assert.Equal(t, "X", doc.Data["nombre"])
	assert.Equal(t, 2, n, "changes to other ids are not emitted")
}
