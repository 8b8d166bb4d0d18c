// Package system provides the wall-clock implementation of crawler.Clock.
package system

import "time"

// Clock reads the system time. All run timestamps and budget arithmetic go
// through this so tests can substitute a manual clock.
type Clock struct{}

// New returns a system clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
