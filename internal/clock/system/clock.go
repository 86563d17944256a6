// Package system provides a real clock implementation.
package system

import "time"

// Clock implements archive.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC. Run directory names derive from
// this value, so it must be timezone-stable.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
