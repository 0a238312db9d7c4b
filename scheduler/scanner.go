package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/momentumcms/recurring"
	"github.com/momentumcms/recurring/queue"
	"github.com/momentumcms/recurring/schedule"
)

// DispatchKey returns the idempotency token for one tick of a schedule.
// The tick is identified by the NextRunAt value in effect when it became
// due, rendered as Unix milliseconds: "cron:{name}:{ms}". Two scanner
// replicas claiming the same tick derive the same key, so the queue's
// uniqueness constraint collapses their enqueues to one accepted job.
func DispatchKey(name string, tick time.Time) string {
	return "cron:" + name + ":" + strconv.FormatInt(tick.UnixMilli(), 10)
}

// run is the scanner loop. One goroutine per Scheduler; ticks execute
// inline, so two ticks of the same scheduler never overlap.
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(context.Background())
		}
	}
}

// tick selects a bounded batch of due schedules and runs the dispatch
// protocol on each. Failures are isolated per schedule: one broken record
// never stops the rest of the batch, and nothing escapes the tick.
func (s *Scheduler) tick(ctx context.Context) {
	store, err := s.boundStore()
	if err != nil {
		return // Shutting down.
	}

	now := time.Now().UTC()
	due, err := store.FindDue(ctx, now, s.cfg.ScanLimit)
	if err != nil {
		s.logger.Error("due-schedule scan failed", slog.String("error", err.Error()))
		return
	}

	for _, rec := range due {
		if _, err := s.boundStore(); err != nil {
			return // Shutdown observed mid-batch; dispatch no further.
		}
		s.dispatchDue(ctx, store, rec)
	}
}

// dispatchDue runs the per-schedule dispatch protocol:
//
//  1. Optimistic re-read: fetch the record fresh and compare NextRunAt to
//     the candidate's. A mismatch means another scanner already claimed
//     this tick — skip. This closes most races cheaply but is not atomic;
//     the unique dispatch key below is the actual correctness guarantee.
//  2. Advance before dispatch: persist LastRunAt=now and the recomputed
//     NextRunAt first. If anything fails after this point the schedule
//     has still moved forward — a missed tick is acceptable, a schedule
//     stuck re-firing the same tick is not.
//  3. Enqueue with the tick-derived unique key. If two replicas both got
//     past step 1, the queue accepts exactly one of them.
func (s *Scheduler) dispatchDue(ctx context.Context, store schedule.Store, candidate *schedule.Record) {
	now := time.Now().UTC()

	fresh, err := store.Get(ctx, candidate.ID)
	if errors.Is(err, recurring.ErrScheduleNotFound) {
		return // Removed since the scan.
	}
	if err != nil {
		s.logger.Error("schedule re-read failed",
			slog.String("name", candidate.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	if !fresh.NextRunAt.Equal(candidate.NextRunAt) {
		s.logger.Debug("tick already claimed",
			slog.String("name", fresh.Name),
			slog.Time("next_run_at", fresh.NextRunAt),
		)
		return
	}
	if !fresh.Enabled {
		return // Disabled since the scan.
	}

	tick := fresh.NextRunAt

	next, err := s.eval.Next(fresh.Cron, now)
	if err != nil {
		// Should be impossible past write-time validation. Leave the
		// record alone rather than advancing it on a guess.
		s.logger.Error("stored cron expression no longer evaluates",
			slog.String("name", fresh.Name),
			slog.String("cron", fresh.Cron),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := store.Advance(ctx, fresh.ID, now, next); err != nil {
		// Claim failed; NextRunAt is untouched, so the next poll retries.
		s.logger.Error("schedule claim failed",
			slog.String("name", fresh.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	_, err = s.queue.Enqueue(ctx, fresh.JobType, fresh.Payload, queue.Options{
		Queue:      fresh.Queue,
		Priority:   int(fresh.Priority),
		MaxRetries: fresh.MaxRetries,
		Timeout:    fresh.Timeout,
		UniqueKey:  DispatchKey(fresh.Name, tick),
	})
	switch {
	case errors.Is(err, queue.ErrDuplicateJob):
		s.logger.Debug("tick already dispatched by peer",
			slog.String("name", fresh.Name),
			slog.Time("tick", tick),
		)
	case err != nil:
		// The schedule already advanced; this tick is skipped, the next
		// one proceeds normally.
		s.logger.Error("dispatch failed",
			slog.String("name", fresh.Name),
			slog.String("job_type", fresh.JobType),
			slog.String("error", err.Error()),
		)
	default:
		s.logger.Info("schedule dispatched",
			slog.String("name", fresh.Name),
			slog.String("job_type", fresh.JobType),
			slog.Time("next_run_at", next),
		)
	}
}
