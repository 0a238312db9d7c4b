// Package schedule defines the persisted schedule record, the public
// definition shape used to register schedules, and the persistence
// contract store backends implement.
//
// A [Record] describes one recurring job: a unique name, a cron
// expression, the job type and payload to enqueue on each tick, and the
// timing fields the scanner maintains (LastRunAt, NextRunAt). NextRunAt is
// the single mutable field driving due-detection; it is always recomputed
// from the cron expression relative to the current time at the moment it
// is set.
//
// A [Definition] is the registration-facing projection of a record: it
// carries everything a caller may specify and none of the fields the
// scheduler owns (ID, LastRunAt, NextRunAt). Build one with
// [NewDefinition] and functional options:
//
//	def := schedule.NewDefinition("daily-cleanup", "maintenance:cleanup", "0 2 * * *",
//	    schedule.WithQueue("maintenance"),
//	    schedule.WithPriority(7),
//	)
package schedule
