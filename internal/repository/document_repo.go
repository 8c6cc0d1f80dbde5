package repository

import (
	"context"
	"fmt"
	"sync"

	"gymsync/internal/docstore"
	"gymsync/internal/metrics"
	"gymsync/internal/models"

	"go.uber.org/zap"
)

// DocumentRepository implements Adapter over a docstore.Store using an
// explicit schema.
type DocumentRepository[T any] struct {
	store   docstore.Store
	schema  models.Schema[T]
	logger  *zap.Logger
	metrics *metrics.Sync

	mu      sync.Mutex
	started bool
	gen     uint64
	cancel  context.CancelFunc
}

var _ Adapter[models.Client] = (*DocumentRepository[models.Client])(nil)

func NewDocumentRepository[T any](store docstore.Store, schema models.Schema[T], logger *zap.Logger, m *metrics.Sync) *DocumentRepository[T] {
	return &DocumentRepository[T]{
		store:   store,
		schema:  schema,
		logger:  logger.With(zap.String("collection", schema.Collection)),
		metrics: m,
	}
}

func (r *DocumentRepository[T]) Collection() string {
	return r.schema.Collection
}

func (r *DocumentRepository[T]) StartSync(ctx context.Context, onChange func([]T), onError func(error)) (context.CancelFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return r.cancel, nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	err := r.store.WatchCollection(watchCtx, r.schema.Collection, func(docs []docstore.Snapshot) {
		records := r.decodeAll(docs)
		r.metrics.SnapshotApplied(r.schema.Collection, len(records))
		onChange(records)
	}, r.errorHandler(onError))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch %s: %w", r.schema.Collection, err)
	}

	r.started = true
	r.gen++
	gen := r.gen
	var once sync.Once
	r.cancel = func() {
		once.Do(func() {
			cancel()
			r.mu.Lock()
			if r.gen == gen {
				r.started = false
			}
			r.mu.Unlock()
		})
	}
	r.logger.Info("Collection sync started")
	return r.cancel, nil
}

func (r *DocumentRepository[T]) StartEntitySync(ctx context.Context, id string, onChange func(*T), onError func(error)) (context.CancelFunc, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	err := r.store.WatchDocument(watchCtx, r.schema.Collection, id, func(doc *docstore.Snapshot) {
		if doc == nil {
			onChange(nil)
			return
		}
		rec, ok := r.decode(*doc)
		if !ok {
			// a corrupt document reads as missing
			onChange(nil)
			return
		}
		onChange(&rec)
	}, r.errorHandler(onError))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch %s/%s: %w", r.schema.Collection, id, err)
	}
	return cancel, nil
}

func (r *DocumentRepository[T]) Save(ctx context.Context, rec T) (T, error) {
	id := r.schema.ID(rec)
	doc := r.schema.Encode(rec)

	if id == "" {
		newID, err := r.store.Create(ctx, r.schema.Collection, doc)
		r.metrics.Write(r.schema.Collection, "create", err)
		if err != nil {
			return rec, fmt.Errorf("failed to create %s: %w", r.schema.Collection, err)
		}
		return r.schema.WithID(rec, newID), nil
	}

	err := r.store.Set(ctx, r.schema.Collection, id, doc)
	r.metrics.Write(r.schema.Collection, "save", err)
	if err != nil {
		return rec, fmt.Errorf("failed to save %s/%s: %w", r.schema.Collection, id, err)
	}
	return rec, nil
}

func (r *DocumentRepository[T]) Patch(ctx context.Context, id string, fields docstore.Document) error {
	if unknown := r.schema.Unknown(fields); len(unknown) > 0 {
		return &UnknownFieldError{Collection: r.schema.Collection, Fields: unknown}
	}
	err := r.store.Set(ctx, r.schema.Collection, id, fields)
	r.metrics.Write(r.schema.Collection, "patch", err)
	if err != nil {
		return fmt.Errorf("failed to patch %s/%s: %w", r.schema.Collection, id, err)
	}
	return nil
}

func (r *DocumentRepository[T]) Delete(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, r.schema.Collection, id)
	r.metrics.Write(r.schema.Collection, "delete", err)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", r.schema.Collection, id, err)
	}
	return nil
}

func (r *DocumentRepository[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, ok, err := r.store.Get(ctx, r.schema.Collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", r.schema.Collection, id, err)
	}
	if !ok {
		return nil, nil
	}
	rec, err := r.schema.Decode(id, doc)
	if err != nil {
		r.metrics.DecodeFailed(r.schema.Collection)
		return nil, err
	}
	return &rec, nil
}

func (r *DocumentRepository[T]) List(ctx context.Context) ([]T, error) {
	docs, err := r.store.List(ctx, r.schema.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.schema.Collection, err)
	}
	return r.decodeAll(docs), nil
}

// decodeAll skips records that fail to decode so one bad document cannot
// blank the collection.
func (r *DocumentRepository[T]) decodeAll(docs []docstore.Snapshot) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		if rec, ok := r.decode(doc); ok {
			out = append(out, rec)
		}
	}
	return out
}

func (r *DocumentRepository[T]) decode(doc docstore.Snapshot) (T, bool) {
	if unknown := r.schema.Unknown(doc.Data); len(unknown) > 0 {
		r.logger.Debug("Dropping unknown fields",
			zap.String("id", doc.ID),
			zap.Strings("fields", unknown),
		)
		r.metrics.UnknownFields(r.schema.Collection, len(unknown))
	}
	rec, err := r.schema.Decode(doc.ID, doc.Data)
	if err != nil {
		r.logger.Warn("Skipping undecodable document",
			zap.String("id", doc.ID),
			zap.Error(err),
		)
		r.metrics.DecodeFailed(r.schema.Collection)
		return rec, false
	}
	return rec, true
}

func (r *DocumentRepository[T]) errorHandler(onError func(error)) docstore.ErrorFunc {
	return func(err error) {
		r.logger.Error("Sync error", zap.Error(err))
		if onError != nil {
			onError(err)
		}
	}
}
