// Package sysclock provides the session-wide Hybrid Logical Clock used
// to stamp PUT/DELETE samples and query replies (spec.md §4.4,
// wire.Timestamp). Adapted from the teacher's clock/clock.go, which
// wraps clockwork.Clock to read a Katzenpost epoch; that epoch
// arithmetic has no zenoh analogue, so this version keeps the same
// clockwork wrapping but produces a monotonically increasing
// nanosecond-since-Unix-epoch counter plus this node's source id
// instead.
package sysclock

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/zenohpico/zenohpico-go/wire"
)

// Clock hands out Timestamps that are strictly increasing even across
// calls that land in the same clockwork tick, by bumping the last-seen
// value by one when the wall clock hasn't advanced.
type Clock struct {
	mu       sync.Mutex
	c        clockwork.Clock
	sourceID [wire.SourceIDLen]byte
	last     uint64
}

// New creates a Clock stamping Timestamps with sourceID, reading time
// from c (use clockwork.NewRealClock() in production, a FakeClock in
// tests).
func New(c clockwork.Clock, sourceID [wire.SourceIDLen]byte) *Clock {
	return &Clock{c: c, sourceID: sourceID}
}

// Now returns the current Timestamp, guaranteed greater than every
// Timestamp previously returned by this Clock.
func (c *Clock) Now() wire.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := uint64(c.c.Now().UnixNano())
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return wire.Timestamp{Time: now, SourceID: c.sourceID}
}
