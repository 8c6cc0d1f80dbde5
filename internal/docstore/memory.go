package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is an in-process Store. Documents are deep-copied on the way
// in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	watchers    map[string]map[*changeQueue]struct{}
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: map[string]map[string]Document{},
		watchers:    map[string]map[*changeQueue]struct{}{},
	}
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) (Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, false, nil
	}
	return doc.Clone(), true, nil
}

func (m *MemoryStore) List(_ context.Context, collection string) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.collections[collection]
	out := make([]Snapshot, 0, len(docs))
	for id, doc := range docs {
		out = append(out, Snapshot{ID: id, Data: doc.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Create(ctx context.Context, collection string, data Document) (string, error) {
	id := ulid.Make().String()
	if err := m.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (m *MemoryStore) Set(_ context.Context, collection, id string, data Document) error {
	if id == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	docs, ok := m.collections[collection]
	if !ok {
		docs = map[string]Document{}
		m.collections[collection] = docs
	}
	docs[id] = docs[id].Merge(data)
	m.notifyLocked(collection, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	if _, ok := m.collections[collection][id]; ok {
		delete(m.collections[collection], id)
		m.notifyLocked(collection, id)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) WatchCollection(ctx context.Context, collection string, fn SnapshotFunc, onErr ErrorFunc) error {
	q := m.register(collection)
	go func() {
		defer m.unregister(collection, q)
		runCollectionWatch(ctx, m, collection, q, fn, onErr)
	}()
	return nil
}

func (m *MemoryStore) WatchDocument(ctx context.Context, collection, id string, fn DocumentFunc, onErr ErrorFunc) error {
	if id == "" {
		return ErrInvalidID
	}
	q := m.register(collection)
	go func() {
		defer m.unregister(collection, q)
		runDocumentWatch(ctx, m, collection, id, q, fn, onErr)
	}()
	return nil
}

func (m *MemoryStore) register(collection string) *changeQueue {
	q := newChangeQueue()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchers[collection] == nil {
		m.watchers[collection] = map[*changeQueue]struct{}{}
	}
	m.watchers[collection][q] = struct{}{}
	return q
}

func (m *MemoryStore) unregister(collection string, q *changeQueue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watchers[collection], q)
}

func (m *MemoryStore) notifyLocked(collection, id string) {
	for q := range m.watchers[collection] {
		q.push(change{ID: id})
	}
}
