package domain

import "time"

// Clock abstracts time retrieval so validation and execution stay deterministic.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a clock reading UTC wall time.
func SystemClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}
