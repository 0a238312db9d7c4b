package recurring

import "errors"

var (
	// Validation errors.
	ErrInvalidCronExpression = errors.New("recurring: invalid cron expression")

	// Lifecycle errors.
	ErrNotReady       = errors.New("recurring: scheduler not ready")
	ErrAlreadyStarted = errors.New("recurring: scheduler already started")
	ErrNoStore        = errors.New("recurring: no store bound")

	// Store errors.
	ErrScheduleNotFound  = errors.New("recurring: schedule not found")
	ErrDuplicateSchedule = errors.New("recurring: duplicate schedule name")
)
