package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/momentumcms/recurring/id"
)

// Redis key naming. All keys are prefixed with "recurring:" to avoid
// collisions with other users of the same Redis.
const redisKeyPrefix = "recurring:"

// redisQueueKey returns the List key for a queue: recurring:queue:{name}
func redisQueueKey(name string) string { return redisKeyPrefix + "queue:" + name }

// redisUniqueKey returns the dedupe key for an idempotency token.
func redisUniqueKey(token string) string { return redisKeyPrefix + "unique:" + token }

// DefaultUniqueTTL is how long accepted unique keys are remembered.
// A day comfortably outlives any realistic tick granularity, so a key for
// one tick cannot expire while that tick could still be re-attempted.
const DefaultUniqueTTL = 24 * time.Hour

// RedisOption configures a Redis queue.
type RedisOption func(*Redis)

// WithUniqueTTL sets how long accepted unique keys are remembered.
func WithUniqueTTL(ttl time.Duration) RedisOption {
	return func(q *Redis) { q.uniqueTTL = ttl }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) RedisOption {
	return func(q *Redis) { q.logger = l }
}

// Redis is a Queue backed by Redis. Each queue is a List of JSON job
// envelopes; unique keys are claimed with SET NX, which is atomic under
// concurrent writers, so the at-most-once acceptance guarantee holds even
// when two clients enqueue the same key in the same instant.
type Redis struct {
	client    redis.Cmdable
	uniqueTTL time.Duration
	logger    *slog.Logger
}

// NewRedis creates a Redis-backed queue. The caller owns the client
// lifecycle.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	q := &Redis{
		client:    client,
		uniqueTTL: DefaultUniqueTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue claims the unique key with SET NX, then pushes the job envelope
// onto the queue list. If the push fails after the claim, the claim is
// rolled back so the tick can be retried.
func (q *Redis) Enqueue(ctx context.Context, jobType string, payload []byte, opts Options) (*Job, error) {
	j := &Job{
		ID:         id.NewJobID(),
		Type:       jobType,
		Payload:    payload,
		Queue:      opts.Queue,
		Priority:   opts.Priority,
		MaxRetries: opts.MaxRetries,
		Timeout:    opts.Timeout,
		UniqueKey:  opts.UniqueKey,
		EnqueuedAt: time.Now().UTC(),
	}

	if opts.UniqueKey != "" {
		claimed, err := q.client.SetNX(ctx, redisUniqueKey(opts.UniqueKey), j.ID.String(), q.uniqueTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("recurring/queue: claim unique key: %w", err)
		}
		if !claimed {
			return nil, ErrDuplicateJob
		}
	}

	envelope, err := json.Marshal(j)
	if err != nil {
		q.releaseClaim(ctx, opts.UniqueKey)
		return nil, fmt.Errorf("recurring/queue: marshal job: %w", err)
	}

	if err := q.client.RPush(ctx, redisQueueKey(j.Queue), envelope).Err(); err != nil {
		q.releaseClaim(ctx, opts.UniqueKey)
		return nil, fmt.Errorf("recurring/queue: push job: %w", err)
	}

	return j, nil
}

func (q *Redis) releaseClaim(ctx context.Context, uniqueKey string) {
	if uniqueKey == "" {
		return
	}
	if err := q.client.Del(ctx, redisUniqueKey(uniqueKey)).Err(); err != nil {
		q.logger.Warn("unique key release failed",
			slog.String("unique_key", uniqueKey),
			slog.String("error", err.Error()),
		)
	}
}
