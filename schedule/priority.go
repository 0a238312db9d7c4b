package schedule

// Priority orders dispatched jobs. Valid values are 0 through 9; higher
// values are processed first.
type Priority int

// Priority bounds and default.
const (
	MinPriority     Priority = 0
	MaxPriority     Priority = 9
	DefaultPriority Priority = 5
)

// Valid reports whether p is within the 0-9 range.
func (p Priority) Valid() bool {
	return p >= MinPriority && p <= MaxPriority
}

// CoercePriority maps any integer onto a valid Priority. Out-of-range
// input falls back to DefaultPriority. This is applied once at the
// registration boundary; everything past it can assume a valid value.
func CoercePriority(n int) Priority {
	p := Priority(n)
	if !p.Valid() {
		return DefaultPriority
	}
	return p
}
