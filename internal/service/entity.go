package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gymsync/internal/cache"
	"gymsync/internal/docstore"
	"gymsync/internal/models"
	"gymsync/internal/reactive"
	"gymsync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by services built without a sync adapter.
var ErrNotConfigured = errors.New("service not configured: no sync adapter")

// ConflictPolicy decides what an optimistic mutation does when the remote
// write fails.
type ConflictPolicy int

const (
	// KeepLocalOnFailure leaves the optimistic state in place until the next
	// snapshot replaces it; only the error is surfaced.
	KeepLocalOnFailure ConflictPolicy = iota
	// RollbackOnFailure restores the record as it was before the mutation.
	RollbackOnFailure
)

func (p ConflictPolicy) String() string {
	switch p {
	case KeepLocalOnFailure:
		return "keep_local"
	case RollbackOnFailure:
		return "rollback"
	}
	return fmt.Sprintf("ConflictPolicy(%d)", int(p))
}

// ParseConflictPolicy accepts the String forms.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch s {
	case "keep_local", "":
		return KeepLocalOnFailure, nil
	case "rollback":
		return RollbackOnFailure, nil
	}
	return 0, fmt.Errorf("unknown conflict policy %q", s)
}

// Status is what consumers see of sync health.
type Status struct {
	Loading   bool   `json:"loading"`
	LastError string `json:"last_error,omitempty"`
}

// Option configures an EntityService.
type Option func(*options)

type options struct {
	optimistic bool
	policy     ConflictPolicy
	kv         cache.KV
}

// WithOptimistic applies writes locally before the remote acknowledges them.
func WithOptimistic(policy ConflictPolicy) Option {
	return func(o *options) {
		o.optimistic = true
		o.policy = policy
	}
}

// WithCache hydrates the list from kv on Start and persists every snapshot.
func WithCache(kv cache.KV) Option {
	return func(o *options) {
		o.kv = kv
	}
}

// EntityService is the single source of truth for one entity type. Only it
// writes its stores; consumers get read-only observables.
type EntityService[T any] struct {
	adapter repository.Adapter[T]
	schema  models.Schema[T]
	logger  *zap.Logger
	opts    options

	records *reactive.Store[[]T]
	status  *reactive.Store[Status]

	life context.Context
	stop context.CancelFunc

	mu         sync.Mutex
	started    bool
	cancelSync context.CancelFunc
	remoteSeen bool
	readErr    bool
	byID       map[string]*entityHandle[T]
	pending    map[string]struct{}
}

type entityHandle[T any] struct {
	store  *reactive.Store[*T]
	cancel context.CancelFunc
}

// NewEntityService builds a service; adapter may be nil, in which case
// every remote operation returns ErrNotConfigured.
func NewEntityService[T any](adapter repository.Adapter[T], schema models.Schema[T], logger *zap.Logger, opts ...Option) *EntityService[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	life, stop := context.WithCancel(context.Background())
	return &EntityService[T]{
		adapter: adapter,
		schema:  schema,
		logger:  logger.With(zap.String("collection", schema.Collection)),
		opts:    o,
		records: reactive.NewStore([]T{}),
		status:  reactive.NewStore(Status{}),
		life:    life,
		stop:    stop,
		byID:    make(map[string]*entityHandle[T]),
		pending: make(map[string]struct{}),
	}
}

// Start wires the list to the remote collection. Calling it again is a no-op.
func (s *EntityService[T]) Start(ctx context.Context) error {
	if s.adapter == nil {
		s.setError(ErrNotConfigured, false)
		return ErrNotConfigured
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.status.Update(func(st Status) Status {
		st.Loading = true
		return st
	})
	if s.opts.kv != nil {
		s.hydrate(ctx)
	}

	cancel, err := s.adapter.StartSync(s.life, s.applySnapshot, s.onReadError)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		s.status.Set(Status{LastError: err.Error()})
		return err
	}
	s.mu.Lock()
	s.cancelSync = cancel
	s.mu.Unlock()
	return nil
}

// Stop tears down the collection sync and every per-id subscription. A
// stopped service cannot be started again.
func (s *EntityService[T]) Stop() {
	s.mu.Lock()
	cancelSync := s.cancelSync
	handles := s.byID
	s.cancelSync = nil
	s.byID = make(map[string]*entityHandle[T])
	s.mu.Unlock()

	if cancelSync != nil {
		cancelSync()
	}
	for _, h := range handles {
		h.cancel()
	}
	s.stop()
}

func (s *EntityService[T]) List() reactive.Observable[[]T] {
	return s.records.ReadOnly()
}

func (s *EntityService[T]) Status() reactive.Observable[Status] {
	return s.status.ReadOnly()
}

// ByID returns the observable for one record, nil while missing. The first
// call for an id subscribes; later calls return the same observable.
func (s *EntityService[T]) ByID(id string) (reactive.Observable[*T], error) {
	if s.adapter == nil {
		return nil, ErrNotConfigured
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.byID[id]; ok {
		return h.store.ReadOnly(), nil
	}

	store := reactive.NewStore[*T](nil)
	cancel, err := s.adapter.StartEntitySync(s.life, id, store.Set, s.onReadError)
	if err != nil {
		return nil, err
	}
	h := &entityHandle[T]{store: store, cancel: cancel}
	s.byID[id] = h
	return h.store.ReadOnly(), nil
}

// Find returns the record with id from the current list.
func (s *EntityService[T]) Find(id string) (T, bool) {
	for _, rec := range s.records.Get() {
		if s.schema.ID(rec) == id {
			return rec, true
		}
	}
	var zero T
	return zero, false
}

// Save updates a record with an id and creates one without.
func (s *EntityService[T]) Save(ctx context.Context, rec T) (T, error) {
	if s.schema.ID(rec) == "" {
		return s.Add(ctx, rec)
	}
	if s.adapter == nil {
		return rec, s.fail(ErrNotConfigured)
	}
	if !s.opts.optimistic {
		saved, err := s.adapter.Save(ctx, rec)
		if err != nil {
			return rec, s.fail(err)
		}
		return saved, nil
	}

	id := s.schema.ID(rec)
	restore := s.applyLocal(id, func(prior *T) T {
		if prior == nil {
			return rec
		}
		return s.merge(*prior, s.schema.Encode(rec))
	})
	saved, err := s.adapter.Save(ctx, rec)
	if err != nil {
		if s.opts.policy == RollbackOnFailure {
			restore()
		}
		return rec, s.fail(err)
	}
	return saved, nil
}

// Add creates a record. In optimistic mode a provisional copy with a
// temporary id is listed at once and swapped in place for the stored one.
func (s *EntityService[T]) Add(ctx context.Context, rec T) (T, error) {
	if s.adapter == nil {
		return rec, s.fail(ErrNotConfigured)
	}
	if s.schema.ID(rec) != "" {
		return s.Save(ctx, rec)
	}
	if !s.opts.optimistic {
		saved, err := s.adapter.Save(ctx, rec)
		if err != nil {
			return rec, s.fail(err)
		}
		return saved, nil
	}

	tempID := models.TemporaryIDPrefix + uuid.NewString()
	provisional := s.schema.WithID(rec, tempID)
	s.mu.Lock()
	s.pending[tempID] = struct{}{}
	s.mu.Unlock()
	s.records.Update(func(cur []T) []T {
		next := make([]T, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, provisional)
	})

	saved, err := s.adapter.Save(ctx, rec)
	if err != nil {
		s.records.Update(func(cur []T) []T {
			s.mu.Lock()
			delete(s.pending, tempID)
			s.mu.Unlock()
			if s.opts.policy == RollbackOnFailure {
				return s.without(cur, tempID)
			}
			return cur
		})
		return rec, s.fail(err)
	}

	s.records.Update(func(cur []T) []T {
		s.mu.Lock()
		delete(s.pending, tempID)
		s.mu.Unlock()

		realID := s.schema.ID(saved)
		if s.indexOf(cur, realID) >= 0 {
			// a snapshot already listed the stored record
			return s.without(cur, tempID)
		}
		i := s.indexOf(cur, tempID)
		next := make([]T, len(cur))
		copy(next, cur)
		if i < 0 {
			return append(next, saved)
		}
		next[i] = saved
		return next
	})
	return saved, nil
}

// Patch merges raw fields, where nil clears a field.
func (s *EntityService[T]) Patch(ctx context.Context, id string, fields docstore.Document) error {
	if s.adapter == nil {
		return s.fail(ErrNotConfigured)
	}
	if !s.opts.optimistic {
		if err := s.adapter.Patch(ctx, id, fields); err != nil {
			return s.fail(err)
		}
		return nil
	}

	restore := s.applyLocal(id, func(prior *T) T {
		base := s.schema.WithID(*new(T), id)
		if prior != nil {
			base = *prior
		}
		return s.merge(base, fields)
	})
	if err := s.adapter.Patch(ctx, id, fields); err != nil {
		if s.opts.policy == RollbackOnFailure {
			restore()
		}
		return s.fail(err)
	}
	return nil
}

// Delete removes a record; a missing id is not an error.
func (s *EntityService[T]) Delete(ctx context.Context, id string) error {
	if s.adapter == nil {
		return s.fail(ErrNotConfigured)
	}
	if !s.opts.optimistic {
		if err := s.adapter.Delete(ctx, id); err != nil {
			return s.fail(err)
		}
		return nil
	}

	var (
		prior    T
		priorIdx = -1
	)
	s.records.Update(func(cur []T) []T {
		priorIdx = s.indexOf(cur, id)
		if priorIdx < 0 {
			return cur
		}
		prior = cur[priorIdx]
		return s.without(cur, id)
	})
	if err := s.adapter.Delete(ctx, id); err != nil {
		if s.opts.policy == RollbackOnFailure && priorIdx >= 0 {
			s.records.Update(func(cur []T) []T {
				if s.indexOf(cur, id) >= 0 {
					return cur
				}
				i := min(priorIdx, len(cur))
				next := make([]T, 0, len(cur)+1)
				next = append(next, cur[:i]...)
				next = append(next, prior)
				return append(next, cur[i:]...)
			})
		}
		return s.fail(err)
	}
	return nil
}

// applyLocal replaces (or appends) the record with id by change(prior) and
// returns a func restoring the previous state of that record.
func (s *EntityService[T]) applyLocal(id string, change func(prior *T) T) func() {
	var (
		prior T
		had   bool
	)
	s.records.Update(func(cur []T) []T {
		next := make([]T, len(cur), len(cur)+1)
		copy(next, cur)
		if i := s.indexOf(cur, id); i >= 0 {
			prior, had = cur[i], true
			next[i] = change(&prior)
			return next
		}
		return append(next, change(nil))
	})

	return func() {
		s.records.Update(func(cur []T) []T {
			i := s.indexOf(cur, id)
			if i < 0 {
				return cur
			}
			if !had {
				return s.without(cur, id)
			}
			next := make([]T, len(cur))
			copy(next, cur)
			next[i] = prior
			return next
		})
	}
}

// merge applies a field patch to a record the way the remote store does.
func (s *EntityService[T]) merge(rec T, patch docstore.Document) T {
	id := s.schema.ID(rec)
	merged, err := s.schema.Decode(id, s.schema.Encode(rec).Merge(patch))
	if err != nil {
		s.logger.Warn("Local merge produced an invalid record", zap.String("id", id), zap.Error(err))
		return rec
	}
	return merged
}

// applySnapshot replaces the list with a full remote set, keeping
// provisional records whose create is still in flight.
func (s *EntityService[T]) applySnapshot(records []T) {
	s.records.Update(func(cur []T) []T {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.remoteSeen = true

		next := make([]T, len(records))
		copy(next, records)
		for _, rec := range cur {
			if _, ok := s.pending[s.schema.ID(rec)]; ok {
				next = append(next, rec)
			}
		}
		return next
	})

	s.mu.Lock()
	clearErr := s.readErr
	s.readErr = false
	s.mu.Unlock()
	s.status.Update(func(st Status) Status {
		st.Loading = false
		if clearErr {
			st.LastError = ""
		}
		return st
	})

	if s.opts.kv != nil {
		s.persist(records)
	}
}

func (s *EntityService[T]) onReadError(err error) {
	s.setError(err, true)
}

// fail records a write error and returns it.
func (s *EntityService[T]) fail(err error) error {
	s.setError(err, false)
	s.logger.Warn("Write failed", zap.Error(err))
	return err
}

func (s *EntityService[T]) setError(err error, read bool) {
	s.mu.Lock()
	s.readErr = read
	s.mu.Unlock()
	s.status.Update(func(st Status) Status {
		st.Loading = false
		st.LastError = err.Error()
		return st
	})
}

func (s *EntityService[T]) indexOf(recs []T, id string) int {
	for i, rec := range recs {
		if s.schema.ID(rec) == id {
			return i
		}
	}
	return -1
}

func (s *EntityService[T]) without(recs []T, id string) []T {
	next := make([]T, 0, len(recs))
	for _, rec := range recs {
		if s.schema.ID(rec) != id {
			next = append(next, rec)
		}
	}
	return next
}
