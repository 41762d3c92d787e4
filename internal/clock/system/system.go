// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock implements harvest.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a clock frozen at T. It is handy in tests that assert on
// timestamps.
type Fixed struct {
	T time.Time
}

// Now returns the frozen time.
func (f Fixed) Now() time.Time {
	return f.T
}
