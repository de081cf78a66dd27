package common

import "sync/atomic"

// SNResolution bounds how many bits a sequence number carries before
// wrapping, negotiated during INIT/JOIN (spec.md §4.5/§4.6) and stored
// as (1 << bits) - 1, e.g. 1<<28 - 1 for zenoh-pico's default.

// SNCounter is the sender-side sequence-number generator for one
// reliability channel of one link. Plain atomic.Uint32 per spec.md
// §9's supplemented alignment/atomics note (original_source
// tests/z_api_alignment_test.c), replacing the teacher's mutex-guarded
// counters elsewhere in the codebase for this specific hot path.
type SNCounter struct {
	next      atomic.Uint32
	resolution uint32
}

// NewSNCounter creates a counter that starts at initial and wraps
// modulo resolution (resolution must be a power of two minus one, a
// "SN mask").
func NewSNCounter(initial uint64, resolution uint64) *SNCounter {
	c := &SNCounter{resolution: uint32(resolution)}
	c.next.Store(uint32(initial) & c.resolution)
	return c
}

// Resolution returns the SN mask this counter wraps at.
func (c *SNCounter) Resolution() uint64 { return uint64(c.resolution) }

// Next returns the next sequence number and advances the counter,
// wrapping at the negotiated resolution.
func (c *SNCounter) Next() uint64 {
	for {
		cur := c.next.Load()
		nxt := (cur + 1) & c.resolution
		if c.next.CompareAndSwap(cur, nxt) {
			return uint64(cur)
		}
	}
}

// Precedes reports whether sn a arrived before sn b under modular
// sequence-number arithmetic (half the resolution space counts as
// "ahead", the other half as "behind"), used by a reliable channel's
// receive side to detect out-of-order/duplicate frames.
func Precedes(a, b, resolution uint64) bool {
	half := (resolution + 1) / 2
	diff := (b - a) & resolution
	return diff != 0 && diff <= half
}
