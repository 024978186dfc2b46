// Package dedup collapses repeated sightings of the same place within a run.
package dedup

import (
	"sync"
	"time"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

// Sighting classifies an observation.
type Sighting int

const (
	// SightingFirst is the first time an external ID is seen in the run.
	SightingFirst Sighting = iota
	// SightingRepeat means the record was merged onto an earlier sighting.
	SightingRepeat
)

func (s Sighting) String() string {
	if s == SightingRepeat {
		return "repeat"
	}
	return "first"
}

// Tracker remembers every external ID seen during one run.
type Tracker struct {
	mu    sync.Mutex
	seen  map[string]discovery.Business
	clock func() time.Time
}

// NewTracker returns an empty Tracker. A nil clock uses time.Now.
func NewTracker(clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		seen:  make(map[string]discovery.Business),
		clock: clock,
	}
}

// Observe records b and returns the record to forward downstream. Repeat
// sightings are merged onto the earlier record.
func (t *Tracker) Observe(b discovery.Business) (discovery.Business, Sighting) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.seen[b.ExternalID]
	if !ok {
		b = discovery.Normalize(b)
		t.seen[b.ExternalID] = b
		return b, SightingFirst
	}
	merged, _ := discovery.Merge(prev, b, t.clock())
	t.seen[b.ExternalID] = merged
	return merged, SightingRepeat
}

// Forget drops an external ID, typically after its persistence failed.
func (t *Tracker) Forget(externalID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, externalID)
}

// Len reports the number of distinct external IDs seen.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
