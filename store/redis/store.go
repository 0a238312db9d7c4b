// Package redis implements the schedule store on Redis. Records are JSON
// values under per-record keys, with a Hash mapping names to IDs and a Set
// tracking all IDs for enumeration.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/momentumcms/recurring/schedule"
)

// Redis key naming. Everything lives under "recurring:" to avoid
// collisions with other users of the same Redis.
const keyPrefix = "recurring:"

// scheduleKey returns the key for a record: recurring:schedule:{id}
func scheduleKey(id string) string { return keyPrefix + "schedule:" + id }

// scheduleIDsKey is the Set tracking all schedule IDs for enumeration.
const scheduleIDsKey = keyPrefix + "schedule_ids"

// scheduleNamesKey maps schedule names to IDs for upsert-by-name.
const scheduleNamesKey = keyPrefix + "schedule_names"

// Compile-time interface check.
var _ schedule.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the schedule store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// getRecord loads and decodes one record key.
func (s *Store) getRecord(ctx context.Context, key string) (*scheduleEntity, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var e scheduleEntity
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("recurring/redis: decode schedule: %w", err)
	}
	return &e, nil
}

// setRecord encodes and writes one record key.
func (s *Store) setRecord(ctx context.Context, key string, e *scheduleEntity) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("recurring/redis: encode schedule: %w", err)
	}
	return s.client.Set(ctx, key, raw, 0).Err()
}

// isRedisNil reports whether err is the redis key-missing sentinel.
func isRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
