// Package cronexpr evaluates cron expressions: validation at registration
// time and next-fire-time computation during scanning.
//
// Expressions use the standard 5-field format (e.g., "0 2 * * *") plus
// descriptors like "@daily" and "@every 30s".
package cronexpr

import (
	"fmt"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Evaluator validates cron expressions and computes fire times.
// Implementations must be safe for concurrent use and stateless with
// respect to schedules: Next is a pure function of (expr, from).
type Evaluator interface {
	// Validate returns a non-nil error if expr is not a valid cron
	// expression.
	Validate(expr string) error

	// Next returns the first fire time of expr strictly after from.
	Next(expr string, from time.Time) (time.Time, error)
}

// parser supports standard 5-field cron and descriptors like "@every 30s".
var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Parse parses a cron expression and returns its schedule.
func Parse(expr string) (cronlib.Schedule, error) {
	return parser.Parse(expr)
}

// Standard is the default Evaluator. It caches parsed expressions, so
// repeated evaluation of the same expression does not re-parse.
type Standard struct {
	mu     sync.RWMutex
	parsed map[string]cronlib.Schedule
}

// New creates a Standard evaluator with an empty parse cache.
func New() *Standard {
	return &Standard{parsed: make(map[string]cronlib.Schedule)}
}

// Validate returns a non-nil error if expr does not parse.
func (e *Standard) Validate(expr string) error {
	if _, err := e.schedule(expr); err != nil {
		return fmt.Errorf("cronexpr: parse %q: %w", expr, err)
	}
	return nil
}

// Next returns the first fire time of expr strictly after from.
func (e *Standard) Next(expr string, from time.Time) (time.Time, error) {
	sched, err := e.schedule(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("cronexpr: parse %q: %w", expr, err)
	}
	return sched.Next(from), nil
}

// schedule returns the parsed schedule for expr, caching on first use.
func (e *Standard) schedule(expr string) (cronlib.Schedule, error) {
	e.mu.RLock()
	sched, ok := e.parsed[expr]
	e.mu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.parsed[expr] = sched
	e.mu.Unlock()
	return sched, nil
}
