package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	rediscommon "gymsync/common/redis"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	redisMergeRetries = 5
	redisReadBatch    = 100
)

// RedisStore keeps each collection in one hash (field = id, value = JSON
// document) and publishes every write to a per-collection stream.
type RedisStore struct {
	client *redis.Client
	prefix string
	block  time.Duration
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store whose keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "gym"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		block:  5 * time.Second,
		logger: logger,
	}
}

func (r *RedisStore) docsKey(collection string) string {
	return fmt.Sprintf("%s:docs:%s", r.prefix, collection)
}

func (r *RedisStore) streamKey(collection string) string {
	return fmt.Sprintf("%s:changes:%s", r.prefix, collection)
}

func (r *RedisStore) Get(ctx context.Context, collection, id string) (Document, bool, error) {
	raw, err := r.client.HGet(ctx, r.docsKey(collection), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	doc, err := UnmarshalDocument([]byte(raw))
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (r *RedisStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	all, err := r.client.HGetAll(ctx, r.docsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}
	out := make([]Snapshot, 0, len(all))
	for id, raw := range all {
		doc, err := UnmarshalDocument([]byte(raw))
		if err != nil {
			r.logger.Warn("Skipping malformed document",
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Error(err),
			)
			continue
		}
		out = append(out, Snapshot{ID: id, Data: doc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *RedisStore) Create(ctx context.Context, collection string, data Document) (string, error) {
	id := ulid.Make().String()
	if err := r.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Set merges under WATCH so concurrent writers never lose fields; the
// change entry is appended in the same transaction.
func (r *RedisStore) Set(ctx context.Context, collection, id string, data Document) error {
	if id == "" {
		return ErrInvalidID
	}
	key := r.docsKey(collection)

	merge := func(tx *redis.Tx) error {
		current := Document{}
		raw, err := tx.HGet(ctx, key, id).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = UnmarshalDocument([]byte(raw)); err != nil {
				return err
			}
		}
		encoded, err := MarshalDocument(current.Merge(data))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, string(encoded))
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: r.streamKey(collection),
				Values: map[string]interface{}{"id": id, "op": "set"},
			})
			return nil
		})
		return err
	}

	for i := 0; i < redisMergeRetries; i++ {
		err := r.client.Watch(ctx, merge, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to set document %s/%s: %w", collection, id, err)
		}
		return nil
	}
	return fmt.Errorf("failed to set document %s/%s: too much contention", collection, id)
}

func (r *RedisStore) Delete(ctx context.Context, collection, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	n, err := r.client.HDel(ctx, r.docsKey(collection), id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return nil
	}
	if _, err := rediscommon.PublishToStream(ctx, r.client, r.streamKey(collection), map[string]interface{}{
		"id": id,
		"op": "delete",
	}); err != nil {
		return fmt.Errorf("failed to publish delete of %s/%s: %w", collection, id, err)
	}
	return nil
}

func (r *RedisStore) WatchCollection(ctx context.Context, collection string, fn SnapshotFunc, onErr ErrorFunc) error {
	q, err := r.follow(ctx, collection)
	if err != nil {
		return err
	}
	go runCollectionWatch(ctx, r, collection, q, fn, onErr)
	return nil
}

func (r *RedisStore) WatchDocument(ctx context.Context, collection, id string, fn DocumentFunc, onErr ErrorFunc) error {
	if id == "" {
		return ErrInvalidID
	}
	q, err := r.follow(ctx, collection)
	if err != nil {
		return err
	}
	go runDocumentWatch(ctx, r, collection, id, q, fn, onErr)
	return nil
}

// follow tails the collection stream from its current end into a queue.
// Read errors are queued too, so they reach the watcher in order.
func (r *RedisStore) follow(ctx context.Context, collection string) (*changeQueue, error) {
	stream := r.streamKey(collection)
	lastID, err := rediscommon.LastStreamID(ctx, r.client, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream position for %s: %w", collection, err)
	}

	q := newChangeQueue()
	go func() {
		backoff := time.Second
		maxBackoff := 30 * time.Second
		for {
			msgs, err := rediscommon.ReadStreamAfter(ctx, r.client, stream, lastID, redisReadBatch, r.block)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				r.logger.Error("Failed to read change stream",
					zap.String("stream", stream),
					zap.Duration("backoff", backoff),
					zap.Error(err),
				)
				q.push(change{Err: err})
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				// the gap may have hidden changes
				q.push(change{})
				continue
			}
			backoff = time.Second
			for _, msg := range msgs {
				lastID = msg.ID
				id, _ := msg.Values["id"].(string)
				q.push(change{ID: id})
			}
		}
	}()
	return q, nil
}
