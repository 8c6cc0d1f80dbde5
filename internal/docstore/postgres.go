package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// DefaultNotifyChannel is the LISTEN/NOTIFY channel carrying
// "<collection>/<id>" payloads.
const DefaultNotifyChannel = "gym_document_changes"

// ErrNoListener is returned by watches on a store built without a listener.
var ErrNoListener = errors.New("docstore: postgres store has no change listener")

// Listener is the subset of *pq.Listener the store needs.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

const documentsDDL = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`

// PostgresStore keeps documents as JSONB rows. Merges use the jsonb ||
// operator, so absent keys survive; changes travel over pg_notify.
type PostgresStore struct {
	db       *sql.DB
	listener Listener
	channel  string
	logger   *zap.Logger

	mu        sync.Mutex
	listening bool
	watchers  map[string]map[*changeQueue]struct{}
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store. listener may be nil, in which case
// watches fail with ErrNoListener.
func NewPostgresStore(db *sql.DB, listener Listener, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:       db,
		listener: listener,
		channel:  DefaultNotifyChannel,
		logger:   logger,
		watchers: map[string]map[*changeQueue]struct{}{},
	}
}

// EnsureSchema creates the documents table when missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, documentsDDL); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, collection, id string) (Document, bool, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	doc, err := UnmarshalDocument(raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (p *PostgresStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = $1 ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := UnmarshalDocument(raw)
		if err != nil {
			p.logger.Warn("Skipping malformed document",
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Error(err),
			)
			continue
		}
		out = append(out, Snapshot{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collection %s: %w", collection, err)
	}
	return out, nil
}

func (p *PostgresStore) Create(ctx context.Context, collection string, data Document) (string, error) {
	id := ulid.Make().String()
	if err := p.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (p *PostgresStore) Set(ctx context.Context, collection, id string, data Document) error {
	if id == "" {
		return ErrInvalidID
	}
	encoded, err := MarshalDocument(data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, id, err)
	}

	return p.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data, updated_at)
			VALUES ($1, $2, $3::jsonb, now())
			ON CONFLICT (collection, id)
			DO UPDATE SET data = documents.data || EXCLUDED.data,
			              updated_at = now()`,
			collection, id, string(encoded),
		); err != nil {
			return fmt.Errorf("failed to upsert document %s/%s: %w", collection, id, err)
		}
		return p.notify(ctx, tx, collection, id)
	})
}

func (p *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	return p.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2`,
			collection, id,
		)
		if err != nil {
			return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil
		}
		return p.notify(ctx, tx, collection, id)
	})
}

func (p *PostgresStore) notify(ctx context.Context, tx *sql.Tx, collection, id string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, p.channel, collection+"/"+id); err != nil {
		return fmt.Errorf("failed to notify change of %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) WatchCollection(ctx context.Context, collection string, fn SnapshotFunc, onErr ErrorFunc) error {
	q, err := p.register(collection)
	if err != nil {
		return err
	}
	go func() {
		defer p.unregister(collection, q)
		runCollectionWatch(ctx, p, collection, q, fn, onErr)
	}()
	return nil
}

func (p *PostgresStore) WatchDocument(ctx context.Context, collection, id string, fn DocumentFunc, onErr ErrorFunc) error {
	if id == "" {
		return ErrInvalidID
	}
	q, err := p.register(collection)
	if err != nil {
		return err
	}
	go func() {
		defer p.unregister(collection, q)
		runDocumentWatch(ctx, p, collection, id, q, fn, onErr)
	}()
	return nil
}

// Close stops the listener, which ends the dispatch loop.
func (p *PostgresStore) Close() error {
	if p.listener == nil {
		return nil
	}
	return p.listener.Close()
}

func (p *PostgresStore) register(collection string) (*changeQueue, error) {
	if p.listener == nil {
		return nil, ErrNoListener
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.listening {
		if err := p.listener.Listen(p.channel); err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", p.channel, err)
		}
		p.listening = true
		go p.dispatch()
	}

	q := newChangeQueue()
	if p.watchers[collection] == nil {
		p.watchers[collection] = map[*changeQueue]struct{}{}
	}
	p.watchers[collection][q] = struct{}{}
	return q, nil
}

func (p *PostgresStore) unregister(collection string, q *changeQueue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watchers[collection], q)
}

// dispatch fans notifications out to watcher queues. A nil notification
// follows a reconnect; every watcher resyncs since events may be lost.
func (p *PostgresStore) dispatch() {
	for n := range p.listener.NotificationChannel() {
		p.mu.Lock()
		if n == nil {
			for _, qs := range p.watchers {
				for q := range qs {
					q.push(change{})
				}
			}
			p.mu.Unlock()
			continue
		}
		collection, id, ok := strings.Cut(n.Extra, "/")
		if !ok {
			p.logger.Warn("Ignoring malformed change notification", zap.String("payload", n.Extra))
			p.mu.Unlock()
			continue
		}
		for q := range p.watchers[collection] {
			q.push(change{ID: id})
		}
		p.mu.Unlock()
	}
}
