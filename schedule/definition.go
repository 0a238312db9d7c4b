package schedule

import "time"

// Definition default values, applied by NewDefinition and Normalize.
const (
	DefaultQueue      = "default"
	DefaultMaxRetries = 3
	DefaultTimeout    = 30 * time.Second
)

// Definition is the registration shape for a schedule.
type Definition struct {
	// Name uniquely identifies the schedule. Registering a second
	// definition with the same name replaces the first.
	Name string `json:"name"`

	// JobType is the job type enqueued on each tick.
	JobType string `json:"job_type"`

	// Cron is the schedule's cron expression (e.g., "0 2 * * *").
	Cron string `json:"cron"`

	// Payload is the static JSON payload enqueued with every job.
	Payload []byte `json:"payload,omitempty"`

	// Queue is the target queue name. Empty means "default".
	Queue string `json:"queue,omitempty"`

	// Priority orders dispatched jobs (0-9). Out-of-range values are
	// coerced to 5 at registration.
	Priority Priority `json:"priority"`

	// MaxRetries is the job's retry budget. Negative values are coerced
	// to the default of 3.
	MaxRetries int `json:"max_retries"`

	// Timeout is the job's execution timeout. Non-positive values are
	// coerced to the default of 30s.
	Timeout time.Duration `json:"timeout"`

	// Enabled gates due-detection. NewDefinition sets it; definitions
	// built as struct literals must set it explicitly.
	Enabled bool `json:"enabled"`
}

// Option is a functional option for building a Definition.
type Option func(*Definition)

// WithPayload sets the static JSON payload enqueued with every job.
func WithPayload(payload []byte) Option {
	return func(d *Definition) { d.Payload = payload }
}

// WithQueue sets the target queue name.
func WithQueue(queue string) Option {
	return func(d *Definition) { d.Queue = queue }
}

// WithPriority sets the job priority. Higher values are processed first.
func WithPriority(p int) Option {
	return func(d *Definition) { d.Priority = Priority(p) }
}

// WithMaxRetries sets the job's retry budget.
func WithMaxRetries(n int) Option {
	return func(d *Definition) { d.MaxRetries = n }
}

// WithTimeout sets the job's execution timeout.
func WithTimeout(t time.Duration) Option {
	return func(d *Definition) { d.Timeout = t }
}

// Disabled creates the schedule disabled. It persists but never fires
// until re-registered enabled.
func Disabled() Option {
	return func(d *Definition) { d.Enabled = false }
}

// NewDefinition builds a Definition with defaults applied.
func NewDefinition(name, jobType, cron string, opts ...Option) Definition {
	def := Definition{
		Name:       name,
		JobType:    jobType,
		Cron:       cron,
		Queue:      DefaultQueue,
		Priority:   DefaultPriority,
		MaxRetries: DefaultMaxRetries,
		Timeout:    DefaultTimeout,
		Enabled:    true,
	}
	for _, opt := range opts {
		opt(&def)
	}
	return def.Normalize()
}

// Normalize returns a copy of the definition with defaults filled in and
// out-of-range fields coerced. The scheduler applies it once at the
// registration boundary, so definitions built as struct literals get the
// same treatment as those built with NewDefinition.
func (d Definition) Normalize() Definition {
	if d.Queue == "" {
		d.Queue = DefaultQueue
	}
	d.Priority = CoercePriority(int(d.Priority))
	if d.MaxRetries < 0 {
		d.MaxRetries = DefaultMaxRetries
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	return d
}
