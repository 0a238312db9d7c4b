// Package scheduler implements the recurring-schedule core: a lifecycle
// state machine around a schedule registry, a startup synchronizer for
// statically declared schedules, and the due-schedule scanner that
// dispatches ticks into the job queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/momentumcms/recurring"
	"github.com/momentumcms/recurring/cronexpr"
	"github.com/momentumcms/recurring/queue"
	"github.com/momentumcms/recurring/schedule"
)

// State is a lifecycle state of the Scheduler.
type State string

// Lifecycle states, in order. Transitions only move forward:
// Init moves Created to Initialized, Start moves Initialized to Ready,
// Stop moves Ready through ShuttingDown to Stopped.
const (
	StateCreated      State = "created"
	StateInitialized  State = "initialized"
	StateReady        State = "ready"
	StateShuttingDown State = "shutting_down"
	StateStopped      State = "stopped"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPollInterval sets how often the scanner checks for due schedules.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.cfg.PollInterval = d }
}

// WithScanLimit caps how many due schedules one tick processes.
func WithScanLimit(n int) Option {
	return func(s *Scheduler) { s.cfg.ScanLimit = n }
}

// WithListLimit caps how many schedules Schedules returns.
func WithListLimit(n int) Option {
	return func(s *Scheduler) { s.cfg.ListLimit = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithEvaluator replaces the cron-expression evaluator.
func WithEvaluator(e cronexpr.Evaluator) Option {
	return func(s *Scheduler) { s.eval = e }
}

// WithStaticSchedules declares schedules reconciled into the store on
// every startup, so code-declared configuration always wins over whatever
// a previous run persisted.
func WithStaticSchedules(defs ...schedule.Definition) Option {
	return func(s *Scheduler) { s.static = append(s.static, defs...) }
}

// Scheduler owns the schedule registry and the scanner loop. Create one
// with New, then drive the lifecycle: Init, Start(store), Stop.
//
// Multiple Scheduler processes may run concurrently against the same
// store and queue; see the dispatch protocol in scanner.go for how
// duplicate ticks are prevented without a distributed lock.
type Scheduler struct {
	cfg    recurring.Config
	eval   cronexpr.Evaluator
	queue  queue.Queue
	logger *slog.Logger
	static []schedule.Definition

	// mu guards state and store. The state is the single serialization
	// point between lifecycle transitions and in-flight ticks.
	mu    sync.Mutex
	state State
	store schedule.Store

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler in the Created state.
func New(q queue.Queue, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:    recurring.DefaultConfig(),
		eval:   cronexpr.New(),
		queue:  q,
		logger: slog.Default(),
		state:  StateCreated,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Init transitions Created to Initialized. No store is bound yet; the
// registry operations fail with ErrNotReady until Start completes.
func (s *Scheduler) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return fmt.Errorf("%w: Init from state %q", recurring.ErrAlreadyStarted, s.state)
	}
	if s.queue == nil {
		return errors.New("scheduler: no queue configured")
	}
	s.state = StateInitialized
	return nil
}

// Start binds the store, reconciles static schedules, and starts the
// scanner loop. On return the scheduler is Ready and registry operations
// are usable. Static-schedule sync errors are logged, never fatal.
func (s *Scheduler) Start(ctx context.Context, store schedule.Store) error {
	if store == nil {
		return recurring.ErrNoStore
	}

	s.mu.Lock()
	switch s.state {
	case StateCreated:
		s.mu.Unlock()
		return fmt.Errorf("%w: Start before Init", recurring.ErrNotReady)
	case StateInitialized:
		// Proceed.
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: Start from state %q", recurring.ErrAlreadyStarted, s.state)
	}
	s.store = store
	s.state = StateReady
	s.mu.Unlock()

	s.syncStatic(ctx, store)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("recurring scheduler started",
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Int("static_schedules", len(s.static)),
	)
	return nil
}

// Stop shuts the scheduler down. The state flips to ShuttingDown before
// the timer is cleared, so an in-flight tick observes it and performs no
// further dispatch. Stop waits for the loop goroutine to return, then
// lands in Stopped. Stopping a scheduler that never started is a no-op.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		if state == StateCreated || state == StateInitialized {
			s.state = StateStopped
		}
		s.mu.Unlock()
		return nil
	}
	s.state = StateShuttingDown
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.logger.Info("recurring scheduler stopped")
	return nil
}

// AddSchedule validates and upserts a schedule by name. Registering the
// same name twice updates the existing record in place, so registration
// is idempotent. Fails with ErrInvalidCronExpression on a bad expression
// and ErrNotReady outside the Ready state.
func (s *Scheduler) AddSchedule(ctx context.Context, def schedule.Definition) error {
	store, err := s.boundStore()
	if err != nil {
		return err
	}
	return s.upsert(ctx, store, def)
}

// RemoveSchedule deletes the schedule with the given name. A name that is
// not registered is a no-op, not an error.
func (s *Scheduler) RemoveSchedule(ctx context.Context, name string) error {
	store, err := s.boundStore()
	if err != nil {
		return err
	}

	rec, err := store.FindByName(ctx, name)
	if errors.Is(err, recurring.ErrScheduleNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scheduler: remove %q: %w", name, err)
	}

	if err := store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, recurring.ErrScheduleNotFound) {
		return fmt.Errorf("scheduler: remove %q: %w", name, err)
	}

	s.logger.Debug("schedule removed", slog.String("name", name))
	return nil
}

// Schedules lists registered schedules projected to their public
// definition shape, capped at the configured list limit.
func (s *Scheduler) Schedules(ctx context.Context) ([]schedule.Definition, error) {
	store, err := s.boundStore()
	if err != nil {
		return nil, err
	}

	recs, err := store.List(ctx, s.cfg.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list schedules: %w", err)
	}

	defs := make([]schedule.Definition, len(recs))
	for i, rec := range recs {
		defs[i] = rec.Definition()
	}
	return defs, nil
}

// upsert is the shared registration path for AddSchedule and the static
// synchronizer: validate, then create or overwrite by name, recomputing
// NextRunAt from now in both branches.
func (s *Scheduler) upsert(ctx context.Context, store schedule.Store, def schedule.Definition) error {
	def = def.Normalize()

	if err := s.eval.Validate(def.Cron); err != nil {
		return fmt.Errorf("%w: %q for schedule %q", recurring.ErrInvalidCronExpression, def.Cron, def.Name)
	}

	now := time.Now().UTC()
	next, err := s.eval.Next(def.Cron, now)
	if err != nil {
		return fmt.Errorf("%w: %q for schedule %q", recurring.ErrInvalidCronExpression, def.Cron, def.Name)
	}

	existing, err := store.FindByName(ctx, def.Name)
	switch {
	case errors.Is(err, recurring.ErrScheduleNotFound):
		rec := &schedule.Record{NextRunAt: next}
		rec.ApplyDefinition(def)
		if createErr := store.Create(ctx, rec); createErr != nil {
			return fmt.Errorf("scheduler: create %q: %w", def.Name, createErr)
		}
	case err != nil:
		return fmt.Errorf("scheduler: lookup %q: %w", def.Name, err)
	default:
		existing.ApplyDefinition(def)
		existing.NextRunAt = next
		if updateErr := store.Update(ctx, existing); updateErr != nil {
			return fmt.Errorf("scheduler: update %q: %w", def.Name, updateErr)
		}
	}

	s.logger.Debug("schedule registered",
		slog.String("name", def.Name),
		slog.String("cron", def.Cron),
		slog.Time("next_run_at", next),
	)
	return nil
}

// syncStatic reconciles the statically declared schedules into the store.
// Each definition is upserted independently; a bad one is logged and
// skipped so the rest of startup proceeds.
func (s *Scheduler) syncStatic(ctx context.Context, store schedule.Store) {
	for _, def := range s.static {
		if err := s.upsert(ctx, store, def); err != nil {
			s.logger.Error("static schedule sync failed",
				slog.String("name", def.Name),
				slog.String("cron", def.Cron),
				slog.String("error", err.Error()),
			)
		}
	}
}

// boundStore returns the store when the scheduler is Ready, ErrNotReady
// otherwise. Every registry operation and every tick goes through it, so
// the shutdown flag is observed at each entry point.
func (s *Scheduler) boundStore() (schedule.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil, recurring.ErrNotReady
	}
	return s.store, nil
}
