package schedule

import (
	"context"
	"time"

	"github.com/momentumcms/recurring/id"
)

// Store defines the persistence contract for schedule records.
//
// Implementations back onto a shared database contended by multiple
// scheduler replicas; every method must be safe under concurrent callers.
// No method may mutate a record beyond what its name says: the scanner's
// correctness depends on Advance being the only write path for NextRunAt
// outside registration.
type Store interface {
	// Create persists a new record and assigns its ID.
	// Returns ErrDuplicateSchedule if the name is already taken.
	Create(ctx context.Context, rec *Record) error

	// Get retrieves a record by ID. Returns ErrScheduleNotFound if absent.
	Get(ctx context.Context, scheduleID id.ScheduleID) (*Record, error)

	// FindByName retrieves the record with the given name.
	// Returns ErrScheduleNotFound if absent.
	FindByName(ctx context.Context, name string) (*Record, error)

	// FindDue returns up to limit enabled records with NextRunAt at or
	// before now, ordered by NextRunAt ascending.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	// List returns up to limit records. A non-positive limit means no cap.
	List(ctx context.Context, limit int) ([]*Record, error)

	// Update replaces every field of the stored record except ID and
	// CreatedAt. Returns ErrScheduleNotFound if absent.
	Update(ctx context.Context, rec *Record) error

	// Advance records a claimed tick: sets LastRunAt and NextRunAt in one
	// write. Returns ErrScheduleNotFound if absent.
	Advance(ctx context.Context, scheduleID id.ScheduleID, lastRunAt, nextRunAt time.Time) error

	// Delete removes a record by ID. Returns ErrScheduleNotFound if absent.
	Delete(ctx context.Context, scheduleID id.ScheduleID) error
}
