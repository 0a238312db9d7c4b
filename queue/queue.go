// Package queue defines the enqueue boundary the scheduler dispatches
// into, plus in-memory and Redis implementations.
//
// The contract the scheduler leans on is uniqueness: two Enqueue calls
// carrying the same non-empty UniqueKey result in at most one accepted
// job. The losing call gets ErrDuplicateJob. Implementations must enforce
// this atomically under concurrent writers — it is the correctness
// backstop for racing scheduler replicas, not an optimization.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/momentumcms/recurring/id"
)

// ErrDuplicateJob is returned by Enqueue when the UniqueKey has already
// been accepted. Callers racing on a shared key should treat it as "the
// other writer won", not as a failure.
var ErrDuplicateJob = errors.New("queue: duplicate unique key")

// Options configures a single enqueued job.
type Options struct {
	// Queue is the target queue name.
	Queue string

	// Priority orders jobs within a queue. Higher runs first.
	Priority int

	// MaxRetries is the job's retry budget.
	MaxRetries int

	// Timeout is the maximum duration the job may run. Enforced by the
	// queue's execution side, not by this module.
	Timeout time.Duration

	// UniqueKey is an idempotency token. Empty disables deduplication.
	UniqueKey string
}

// Job is the handle returned by a successful Enqueue.
type Job struct {
	ID         id.JobID      `json:"id"`
	Type       string        `json:"type"`
	Payload    []byte        `json:"payload,omitempty"`
	Queue      string        `json:"queue"`
	Priority   int           `json:"priority"`
	MaxRetries int           `json:"max_retries"`
	Timeout    time.Duration `json:"timeout"`
	UniqueKey  string        `json:"unique_key,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// Queue accepts jobs for asynchronous execution.
type Queue interface {
	// Enqueue submits a job. With a non-empty opts.UniqueKey, at most one
	// of any set of calls sharing that key is accepted; the rest return
	// ErrDuplicateJob.
	Enqueue(ctx context.Context, jobType string, payload []byte, opts Options) (*Job, error)
}
