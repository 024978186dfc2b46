// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

// Clock implements discovery.Clock using time.Now in UTC.
type Clock struct{}

var _ discovery.Clock = (*Clock)(nil)

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC. Stored timestamps are always UTC so
// merge comparisons do not depend on the host time zone.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
