package recurring

import "time"

// Config holds configuration for the scheduler.
type Config struct {
	// PollInterval is how often the scanner checks for due schedules.
	PollInterval time.Duration

	// ScanLimit is the maximum number of due schedules processed per tick.
	ScanLimit int

	// ListLimit is the maximum number of schedules returned by a listing.
	ListLimit int
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 1 * time.Minute,
		ScanLimit:    100,
		ListLimit:    1000,
	}
}
