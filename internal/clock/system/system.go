// Package system provides the wall clock used to stamp submissions.
package system

import "time"

// Clock implements intake.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time at microsecond precision, the resolution
// Postgres keeps for timestamptz, so stored and returned records compare equal.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
