package queue

import (
	"context"
	"sync"
	"time"

	"github.com/momentumcms/recurring/id"
)

// Memory is an in-process Queue for development and testing. Jobs are
// retained for inspection; unique keys are remembered for the lifetime of
// the queue.
type Memory struct {
	mu   sync.Mutex
	jobs []*Job
	keys map[string]id.JobID
}

// NewMemory returns an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]id.JobID)}
}

// Enqueue accepts the job unless its UniqueKey was already accepted.
func (m *Memory) Enqueue(_ context.Context, jobType string, payload []byte, opts Options) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.UniqueKey != "" {
		if _, taken := m.keys[opts.UniqueKey]; taken {
			return nil, ErrDuplicateJob
		}
	}

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
		m.keys[opts.UniqueKey] = j.ID
	}
	m.jobs = append(m.jobs, j)

	cp := *j
	return &cp, nil
}

// Jobs returns a copy of every accepted job in enqueue order.
func (m *Memory) Jobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Job, len(m.jobs))
	for i, j := range m.jobs {
		cp := *j
		out[i] = &cp
	}
	return out
}

// Len returns the number of accepted jobs.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}
