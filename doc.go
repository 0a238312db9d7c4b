// Package recurring provides the recurring-job scheduling core of the
// Momentum content platform: named, cron-driven schedules persisted in a
// shared store, scanned on a fixed-interval timer, and dispatched into an
// external job queue.
//
// The scheduler is safe to run as multiple concurrent replicas against the
// same store and queue. It does not rely on a distributed lock service:
// each due tick is claimed by advancing the schedule's NextRunAt before
// dispatch, and the enqueue call carries an idempotency key derived from
// the pre-advance NextRunAt, so the queue's uniqueness constraint collapses
// racing dispatch attempts to a single accepted job.
//
// # Quick Start
//
//	q := queue.NewMemory()
//	sched := scheduler.New(q,
//	    scheduler.WithPollInterval(time.Minute),
//	    scheduler.WithStaticSchedules(
//	        schedule.NewDefinition("daily-cleanup", "maintenance:cleanup", "0 2 * * *"),
//	    ),
//	)
//	if err := sched.Init(); err != nil { ... }
//	if err := sched.Start(ctx, memory.New()); err != nil { ... }
//	defer sched.Stop(ctx)
//
// # Architecture
//
// Each concern is a small package: schedule defines the persisted record
// and the store contract, queue defines the enqueue boundary, cronexpr
// evaluates cron expressions, and scheduler ties them together. A single
// store backend (memory, mongo, redis, postgres) implements the whole
// persistence contract.
package recurring
