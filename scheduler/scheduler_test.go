package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/momentumcms/recurring"
	"github.com/momentumcms/recurring/queue"
	"github.com/momentumcms/recurring/schedule"
	"github.com/momentumcms/recurring/scheduler"
	"github.com/momentumcms/recurring/store/memory"
)

// failQueue rejects every enqueue, counting attempts.
type failQueue struct {
	mu    sync.Mutex
	calls int
}

func (q *failQueue) Enqueue(_ context.Context, _ string, _ []byte, _ queue.Options) (*queue.Job, error) {
	q.mu.Lock()
	q.calls++
	q.mu.Unlock()
	return nil, errors.New("broker unavailable")
}

func (q *failQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func newTestScheduler(t *testing.T, q queue.Queue, opts ...scheduler.Option) (*scheduler.Scheduler, *memory.Store) {
	t.Helper()

	opts = append([]scheduler.Option{
		scheduler.WithPollInterval(20 * time.Millisecond),
		scheduler.WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)

	sched := scheduler.New(q, opts...)
	if err := sched.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	s := memory.New()
	if err := sched.Start(context.Background(), s); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := sched.Stop(context.Background()); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return sched, s
}

// seedDue persists a record whose tick is already overdue.
func seedDue(t *testing.T, s *memory.Store, def schedule.Definition, tick time.Time) *schedule.Record {
	t.Helper()

	rec := &schedule.Record{NextRunAt: tick}
	rec.ApplyDefinition(def.Normalize())
	if err := s.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestScheduler_Lifecycle(t *testing.T) {
	ctx := context.Background()
	sched := scheduler.New(queue.NewMemory(), scheduler.WithLogger(slog.New(slog.DiscardHandler)))

	if got := sched.State(); got != scheduler.StateCreated {
		t.Fatalf("state = %q, want %q", got, scheduler.StateCreated)
	}
	if err := sched.AddSchedule(ctx, schedule.NewDefinition("x", "y", "* * * * *")); !errors.Is(err, recurring.ErrNotReady) {
		t.Errorf("AddSchedule before Init: err = %v, want ErrNotReady", err)
	}
	if err := sched.Start(ctx, memory.New()); !errors.Is(err, recurring.ErrNotReady) {
		t.Errorf("Start before Init: err = %v, want ErrNotReady", err)
	}

	if err := sched.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := sched.State(); got != scheduler.StateInitialized {
		t.Fatalf("state = %q, want %q", got, scheduler.StateInitialized)
	}
	if err := sched.Init(); !errors.Is(err, recurring.ErrAlreadyStarted) {
		t.Errorf("second Init: err = %v, want ErrAlreadyStarted", err)
	}

	if err := sched.Start(ctx, nil); !errors.Is(err, recurring.ErrNoStore) {
		t.Errorf("Start with nil store: err = %v, want ErrNoStore", err)
	}
	if err := sched.Start(ctx, memory.New()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := sched.State(); got != scheduler.StateReady {
		t.Fatalf("state = %q, want %q", got, scheduler.StateReady)
	}
	if err := sched.Start(ctx, memory.New()); !errors.Is(err, recurring.ErrAlreadyStarted) {
		t.Errorf("second Start: err = %v, want ErrAlreadyStarted", err)
	}

	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := sched.State(); got != scheduler.StateStopped {
		t.Fatalf("state = %q, want %q", got, scheduler.StateStopped)
	}
	if err := sched.AddSchedule(ctx, schedule.NewDefinition("x", "y", "* * * * *")); !errors.Is(err, recurring.ErrNotReady) {
		t.Errorf("AddSchedule after Stop: err = %v, want ErrNotReady", err)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	sched := scheduler.New(queue.NewMemory(), scheduler.WithLogger(slog.New(slog.DiscardHandler)))

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := sched.State(); got != scheduler.StateStopped {
		t.Errorf("state = %q, want %q", got, scheduler.StateStopped)
	}
}

// ──────────────────────────────────────────────────
// Registry
// ──────────────────────────────────────────────────

func TestScheduler_AddScheduleIdempotent(t *testing.T) {
	ctx := context.Background()
	sched, s := newTestScheduler(t, queue.NewMemory())

	def := schedule.NewDefinition("nightly-report", "reports:generate", "0 3 * * *")
	if err := sched.AddSchedule(ctx, def); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	first, err := s.FindByName(ctx, "nightly-report")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}

	// Re-register with a different cadence; the record is replaced in place.
	def2 := schedule.NewDefinition("nightly-report", "reports:generate", "0 4 * * *",
		schedule.WithPriority(8),
	)
	if err := sched.AddSchedule(ctx, def2); err != nil {
		t.Fatalf("AddSchedule again: %v", err)
	}

	second, err := s.FindByName(ctx, "nightly-report")
	if err != nil {
		t.Fatalf("FindByName after update: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("ID changed on re-registration: %v -> %v", first.ID, second.ID)
	}
	if second.Cron != "0 4 * * *" {
		t.Errorf("Cron = %q, want %q", second.Cron, "0 4 * * *")
	}
	if second.Priority != 8 {
		t.Errorf("Priority = %d, want 8", second.Priority)
	}

	defs, err := sched.Schedules(ctx)
	if err != nil {
		t.Fatalf("Schedules: %v", err)
	}
	if len(defs) != 1 {
		t.Errorf("len(Schedules) = %d, want 1", len(defs))
	}
}

func TestScheduler_AddScheduleInvalidCron(t *testing.T) {
	ctx := context.Background()
	sched, s := newTestScheduler(t, queue.NewMemory())

	err := sched.AddSchedule(ctx, schedule.NewDefinition("broken", "noop", "not a cron"))
	if !errors.Is(err, recurring.ErrInvalidCronExpression) {
		t.Fatalf("err = %v, want ErrInvalidCronExpression", err)
	}

	// Nothing was persisted.
	if _, err := s.FindByName(ctx, "broken"); !errors.Is(err, recurring.ErrScheduleNotFound) {
		t.Errorf("FindByName after rejected add: err = %v, want ErrScheduleNotFound", err)
	}
}

func TestScheduler_RemoveSchedule(t *testing.T) {
	ctx := context.Background()
	sched, s := newTestScheduler(t, queue.NewMemory())

	if err := sched.AddSchedule(ctx, schedule.NewDefinition("short-lived", "noop", "* * * * *")); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if err := sched.RemoveSchedule(ctx, "short-lived"); err != nil {
		t.Fatalf("RemoveSchedule: %v", err)
	}
	if _, err := s.FindByName(ctx, "short-lived"); !errors.Is(err, recurring.ErrScheduleNotFound) {
		t.Errorf("FindByName after remove: err = %v, want ErrScheduleNotFound", err)
	}
}

func TestScheduler_RemoveScheduleUnknownIsNoop(t *testing.T) {
	sched, _ := newTestScheduler(t, queue.NewMemory())

	if err := sched.RemoveSchedule(context.Background(), "never-registered"); err != nil {
		t.Errorf("RemoveSchedule unknown name: err = %v, want nil", err)
	}
}

func TestScheduler_StaticSchedulesSyncedOnStart(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()

	sched := scheduler.New(q,
		scheduler.WithPollInterval(time.Hour),
		scheduler.WithLogger(slog.New(slog.DiscardHandler)),
		scheduler.WithStaticSchedules(
			schedule.NewDefinition("static-good", "noop", "0 0 * * *"),
			schedule.NewDefinition("static-broken", "noop", "not a cron"),
		),
	)
	if err := sched.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	s := memory.New()
	// Pre-seed a stale version of the static schedule; startup wins.
	seedDue(t, s, schedule.NewDefinition("static-good", "noop", "*/5 * * * *"), time.Now().UTC().Add(time.Hour))

	if err := sched.Start(ctx, s); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop(ctx)

	good, err := s.FindByName(ctx, "static-good")
	if err != nil {
		t.Fatalf("FindByName static-good: %v", err)
	}
	if good.Cron != "0 0 * * *" {
		t.Errorf("Cron = %q, want the statically declared %q", good.Cron, "0 0 * * *")
	}

	// The broken definition is skipped, not fatal.
	if _, err := s.FindByName(ctx, "static-broken"); !errors.Is(err, recurring.ErrScheduleNotFound) {
		t.Errorf("FindByName static-broken: err = %v, want ErrScheduleNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Scanner
// ──────────────────────────────────────────────────

func TestDispatchKey(t *testing.T) {
	tick := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	want := "cron:daily-cleanup:" + strconv.FormatInt(tick.UnixMilli(), 10)

	if got := scheduler.DispatchKey("daily-cleanup", tick); got != want {
		t.Errorf("DispatchKey = %q, want %q", got, want)
	}
}

func TestScheduler_DispatchesDueSchedule(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	sched, s := newTestScheduler(t, q)

	tick := time.Now().UTC().Add(-time.Minute)
	def := schedule.NewDefinition("daily-cleanup", "maintenance:cleanup", "0 2 * * *",
		schedule.WithPayload([]byte(`{"retain_days":30}`)),
		schedule.WithQueue("maintenance"),
		schedule.WithPriority(7),
	)
	rec := seedDue(t, s, def, tick)

	waitFor(t, "dispatch", func() bool { return q.Len() > 0 })

	jobs := q.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}
	j := jobs[0]
	if j.Type != "maintenance:cleanup" {
		t.Errorf("Type = %q, want %q", j.Type, "maintenance:cleanup")
	}
	if j.Queue != "maintenance" {
		t.Errorf("Queue = %q, want %q", j.Queue, "maintenance")
	}
	if j.Priority != 7 {
		t.Errorf("Priority = %d, want 7", j.Priority)
	}
	if string(j.Payload) != `{"retain_days":30}` {
		t.Errorf("Payload = %s", j.Payload)
	}
	if want := scheduler.DispatchKey("daily-cleanup", tick); j.UniqueKey != want {
		t.Errorf("UniqueKey = %q, want %q", j.UniqueKey, want)
	}

	updated, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if updated.LastRunAt == nil {
		t.Fatal("LastRunAt not set after dispatch")
	}
	if !updated.NextRunAt.After(time.Now().UTC()) {
		t.Errorf("NextRunAt = %v, want a future time", updated.NextRunAt)
	}

	// The next 02:00 tick is far away; no further dispatches.
	time.Sleep(100 * time.Millisecond)
	if q.Len() != 1 {
		t.Errorf("len(jobs) = %d after settling, want 1", q.Len())
	}

	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_AdvancesEvenWhenDispatchFails(t *testing.T) {
	ctx := context.Background()
	fq := &failQueue{}
	sched, s := newTestScheduler(t, fq)

	tick := time.Now().UTC().Add(-time.Minute)
	rec := seedDue(t, s, schedule.NewDefinition("flaky-target", "noop", "0 2 * * *"), tick)

	waitFor(t, "failed dispatch attempt", func() bool { return fq.Count() > 0 })

	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// The schedule moved forward before the enqueue was attempted, so the
	// failing enqueue costs the tick, not the schedule.
	updated, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if updated.LastRunAt == nil {
		t.Fatal("LastRunAt not set; advance must precede dispatch")
	}
	if !updated.NextRunAt.After(tick) {
		t.Errorf("NextRunAt = %v, want later than the claimed tick %v", updated.NextRunAt, tick)
	}
	if fq.Count() != 1 {
		t.Errorf("enqueue attempts = %d, want 1", fq.Count())
	}
}

func TestScheduler_SkipsDisabled(t *testing.T) {
	q := queue.NewMemory()
	sched, s := newTestScheduler(t, q)

	def := schedule.NewDefinition("paused", "noop", "* * * * *", schedule.Disabled())
	seedDue(t, s, def, time.Now().UTC().Add(-time.Minute))

	time.Sleep(150 * time.Millisecond)

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("len(jobs) = %d for disabled schedule, want 0", q.Len())
	}
}

func TestScheduler_DuplicateTickCollapsed(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	sched, s := newTestScheduler(t, q)

	tick := time.Now().UTC().Add(-time.Minute)
	rec := seedDue(t, s, schedule.NewDefinition("claimed-elsewhere", "noop", "0 2 * * *"), tick)

	// A peer replica already dispatched this tick.
	if _, err := q.Enqueue(ctx, "noop", nil, queue.Options{
		UniqueKey: scheduler.DispatchKey("claimed-elsewhere", tick),
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// The scanner still advances the schedule, but its enqueue loses the
	// uniqueness race and no second job appears.
	waitFor(t, "schedule advance", func() bool {
		updated, err := s.Get(ctx, rec.ID)
		return err == nil && updated.LastRunAt != nil
	})
	time.Sleep(100 * time.Millisecond)

	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("len(jobs) = %d, want the peer's single job", q.Len())
	}
}

func TestScheduler_ConcurrentReplicasDispatchOnce(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	s := memory.New()

	tick := time.Now().UTC().Add(-time.Minute)
	rec := seedDue(t, s, schedule.NewDefinition("shared-tick", "noop", "0 2 * * *"), tick)

	var scheds []*scheduler.Scheduler
	for range 3 {
		sched := scheduler.New(q,
			scheduler.WithPollInterval(15*time.Millisecond),
			scheduler.WithLogger(slog.New(slog.DiscardHandler)),
		)
		if err := sched.Init(); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if err := sched.Start(ctx, s); err != nil {
			t.Fatalf("Start: %v", err)
		}
		scheds = append(scheds, sched)
	}

	waitFor(t, "dispatch", func() bool { return q.Len() > 0 })

	// Let every replica observe the due record at least once more.
	waitFor(t, "schedule advance", func() bool {
		updated, err := s.Get(ctx, rec.ID)
		return err == nil && updated.LastRunAt != nil
	})
	time.Sleep(150 * time.Millisecond)

	for _, sched := range scheds {
		if err := sched.Stop(ctx); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}

	if q.Len() != 1 {
		t.Errorf("len(jobs) = %d across 3 replicas, want exactly 1", q.Len())
	}
}
