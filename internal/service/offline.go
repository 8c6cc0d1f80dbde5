package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gymsync/internal/cache"
	"gymsync/internal/docstore"

	"go.uber.org/zap"
)

const persistTimeout = 5 * time.Second

type cachedRecord struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func snapshotKey(collection string) string {
	return "snapshot:" + collection
}

// hydrate lists the last persisted snapshot until the first remote one lands.
func (s *EntityService[T]) hydrate(ctx context.Context) {
	raw, err := s.opts.kv.Get(ctx, snapshotKey(s.schema.Collection))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Failed to read offline snapshot", zap.Error(err))
		}
		return
	}
	records, err := s.decodeCached(raw)
	if err != nil {
		s.logger.Warn("Discarding offline snapshot", zap.Error(err))
		return
	}

	s.records.Update(func(cur []T) []T {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.remoteSeen {
			return cur
		}
		return records
	})
	s.logger.Info("Hydrated from offline snapshot", zap.Int("records", len(records)))
}

func (s *EntityService[T]) persist(records []T) {
	raw, err := s.encodeCached(records)
	if err != nil {
		s.logger.Warn("Failed to encode offline snapshot", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.opts.kv.Set(ctx, snapshotKey(s.schema.Collection), raw); err != nil {
		s.logger.Warn("Failed to persist offline snapshot", zap.Error(err))
	}
}

func (s *EntityService[T]) encodeCached(records []T) (string, error) {
	out := make([]cachedRecord, 0, len(records))
	for _, rec := range records {
		data, err := docstore.MarshalDocument(s.schema.Encode(rec))
		if err != nil {
			return "", err
		}
		out = append(out, cachedRecord{ID: s.schema.ID(rec), Data: data})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *EntityService[T]) decodeCached(raw string) ([]T, error) {
	var cached []cachedRecord
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, fmt.Errorf("failed to parse offline snapshot: %w", err)
	}
	records := make([]T, 0, len(cached))
	for _, c := range cached {
		doc, err := docstore.UnmarshalDocument(c.Data)
		if err != nil {
			return nil, err
		}
		rec, err := s.schema.Decode(c.ID, doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
