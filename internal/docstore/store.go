package docstore

import (
	"context"
	"errors"
	"sync"
)

// ErrInvalidID is returned for empty document ids.
var ErrInvalidID = errors.New("docstore: empty document id")

// SnapshotFunc receives the complete current set of a collection.
type SnapshotFunc func(docs []Snapshot)

// DocumentFunc receives one document, or nil when it does not exist.
type DocumentFunc func(doc *Snapshot)

// ErrorFunc receives transport errors from a running watch.
type ErrorFunc func(err error)

// Store is the remote document database boundary.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, bool, error)
	List(ctx context.Context, collection string) ([]Snapshot, error)
	// Create stores data under a store-assigned id.
	Create(ctx context.Context, collection string, data Document) (string, error)
	// Set merge-upserts data: present keys overwrite, absent keys are kept.
	Set(ctx context.Context, collection, id string, data Document) error
	// Delete removes id. Deleting a missing id is not an error.
	Delete(ctx context.Context, collection, id string) error
	// WatchCollection emits the full collection now and after every change
	// until ctx is done. Callbacks run on one goroutine, in change order.
	WatchCollection(ctx context.Context, collection string, fn SnapshotFunc, onErr ErrorFunc) error
	// WatchDocument is WatchCollection scoped to a single id.
	WatchDocument(ctx context.Context, collection, id string, fn DocumentFunc, onErr ErrorFunc) error
}

// change identifies a modified document. An empty ID means "anything may
// have changed" and forces a resync. A change with Err set carries a
// transport error to the watch goroutine instead.
type change struct {
	ID  string
	Err error
}

// changeQueue is an unbounded FIFO so producers never block or drop.
type changeQueue struct {
	mu     sync.Mutex
	items  []change
	signal chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{signal: make(chan struct{}, 1)}
}

func (q *changeQueue) push(c change) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *changeQueue) drain() []change {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// lister is the read side shared by watch loops.
type lister interface {
	Get(ctx context.Context, collection, id string) (Document, bool, error)
	List(ctx context.Context, collection string) ([]Snapshot, error)
}

// runCollectionWatch emits an initial snapshot, then one snapshot per
// queued change until ctx is done.
func runCollectionWatch(ctx context.Context, l lister, collection string, q *changeQueue, fn SnapshotFunc, onErr ErrorFunc) {
	report := func(err error) {
		if ctx.Err() == nil && onErr != nil {
			onErr(err)
		}
	}
	emit := func() {
		docs, err := l.List(ctx, collection)
		if err != nil {
			report(err)
			return
		}
		fn(docs)
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.signal:
			for _, c := range q.drain() {
				if ctx.Err() != nil {
					return
				}
				if c.Err != nil {
					report(c.Err)
					continue
				}
				emit()
			}
		}
	}
}

// runDocumentWatch is runCollectionWatch for one id; changes to other ids
// are ignored.
func runDocumentWatch(ctx context.Context, l lister, collection, id string, q *changeQueue, fn DocumentFunc, onErr ErrorFunc) {
	report := func(err error) {
		if ctx.Err() == nil && onErr != nil {
			onErr(err)
		}
	}
	emit := func() {
		doc, ok, err := l.Get(ctx, collection, id)
		if err != nil {
			report(err)
			return
		}
		if !ok {
			fn(nil)
			return
		}
		fn(&Snapshot{ID: id, Data: doc})
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.signal:
			for _, c := range q.drain() {
				if ctx.Err() != nil {
					return
				}
				switch {
				case c.Err != nil:
					report(c.Err)
				case c.ID == "" || c.ID == id:
					emit()
				}
			}
		}
	}
}
