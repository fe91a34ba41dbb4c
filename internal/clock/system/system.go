// Package system provides the wall-clock implementation of capture.Clock.
package system

import "time"

// Clock returns the current system time.
type Clock struct{}

// Now returns time.Now().
func (Clock) Now() time.Time {
	return time.Now()
}
