package schedule

import (
	"time"

	"github.com/momentumcms/recurring/id"
)

// Record is the persisted form of a schedule. It is the only entity this
// module stores. There is no soft-delete or history: the record's current
// state is its entire identity.
type Record struct {
	// ID is assigned by the store on Create and never changes.
	ID id.ScheduleID `json:"id"`

	// Name uniquely identifies the schedule and is the upsert key.
	Name string `json:"name"`

	// JobType is the opaque job-type tag passed through to the queue.
	JobType string `json:"job_type"`

	// Cron is the schedule's cron expression.
	Cron string `json:"cron"`

	// Payload is passed through unmodified to the queue (JSON).
	Payload []byte `json:"payload,omitempty"`

	// Queue is the target queue name.
	Queue string `json:"queue"`

	// Priority orders dispatched jobs (0-9).
	Priority Priority `json:"priority"`

	// MaxRetries is forwarded to the queue as the job's retry budget.
	MaxRetries int `json:"max_retries"`

	// Timeout is forwarded to the queue as the job's execution timeout.
	Timeout time.Duration `json:"timeout"`

	// Enabled gates due-detection. Disabled schedules never fire.
	Enabled bool `json:"enabled"`

	// LastRunAt is set by the scanner each time a tick is claimed.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// NextRunAt drives due-detection.
	NextRunAt time.Time `json:"next_run_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Definition returns the public projection of the record: everything a
// caller registered, none of the scheduler-owned fields.
func (r *Record) Definition() Definition {
	return Definition{
		Name:       r.Name,
		JobType:    r.JobType,
		Cron:       r.Cron,
		Payload:    r.Payload,
		Queue:      r.Queue,
		Priority:   r.Priority,
		MaxRetries: r.MaxRetries,
		Timeout:    r.Timeout,
		Enabled:    r.Enabled,
	}
}

// ApplyDefinition overwrites every definition-owned field from def.
// ID, LastRunAt, NextRunAt, and CreatedAt are untouched: the first is
// immutable, the middle two are scanner-owned, the last is store-owned.
func (r *Record) ApplyDefinition(def Definition) {
	r.Name = def.Name
	r.JobType = def.JobType
	r.Cron = def.Cron
	r.Payload = def.Payload
	r.Queue = def.Queue
	r.Priority = def.Priority
	r.MaxRetries = def.MaxRetries
	r.Timeout = def.Timeout
	r.Enabled = def.Enabled
}
