package session

import (
	"sync"

	"github.com/zenohpico/zenohpico-go/keyexpr"
)

// ConsolidationMode selects how an outbound GET merges RESPONSE
// messages carrying the same key expression, per spec.md §4.4.
type ConsolidationMode int

const (
	// ConsolidationAuto lets the session pick; for a get-style query
	// (Session.Get's only use) this behaves like ConsolidationLatest.
	ConsolidationAuto ConsolidationMode = iota
	// ConsolidationNone delivers every reply, including duplicates.
	ConsolidationNone
	// ConsolidationMonotonic delivers a reply for a key immediately,
	// but drops a later reply for the same key whose timestamp
	// precedes one already delivered.
	ConsolidationMonotonic
	// ConsolidationLatest delivers only the newest (by timestamp) reply
	// seen so far per key, once the pending query finalizes.
	ConsolidationLatest
)

// Reply is one consolidated result delivered to a GET caller. When
// IsErr is set, Sample.Payload/Sample.Encoding carry the error value
// and Sample.Key/IsDelete/Ts are unset.
type Reply struct {
	Key    keyexpr.KeyExpr
	Sample Sample
	IsErr  bool
}

// PendingQuery tracks one outbound REQUEST awaiting RESPONSE /
// RESPONSE_FINAL, per spec.md §3/§4.4.
type PendingQuery struct {
	RequestID uint64
	Mode      ConsolidationMode

	callback func(Reply)
	dropFn   func()

	mu   sync.Mutex
	seen map[string]Reply // ConsolidationLatest/Monotonic bookkeeping, keyed by canonical key
	done bool
}

func newPendingQuery(requestID uint64, mode ConsolidationMode, callback func(Reply), dropFn func()) *PendingQuery {
	return &PendingQuery{
		RequestID: requestID,
		Mode:      mode,
		callback:  callback,
		dropFn:    dropFn,
		seen:      make(map[string]Reply),
	}
}

// deliver applies consolidation and, if the reply should be surfaced
// immediately (None/Monotonic), invokes the caller's callback.
// ConsolidationLatest and ConsolidationAuto (get-style queries behave
// as ConsolidationLatest) instead buffer and are flushed by finalize.
func (p *PendingQuery) deliver(r Reply) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	key := r.Key.String()
	switch p.Mode {
	case ConsolidationNone:
		p.mu.Unlock()
		p.callback(r)
		return
	case ConsolidationLatest, ConsolidationAuto:
		p.seen[key] = r
		p.mu.Unlock()
		return
	default: // ConsolidationMonotonic
		if prev, ok := p.seen[key]; ok && prev.Sample.Ts != nil && r.Sample.Ts != nil && r.Sample.Ts.Before(*prev.Sample.Ts) {
			p.mu.Unlock()
			return
		}
		p.seen[key] = r
		p.mu.Unlock()
		p.callback(r)
		return
	}
}

// finalize ends the pending query, flushing any buffered
// ConsolidationLatest/ConsolidationAuto replies and running the
// caller's drop function exactly once. Safe to call more than once;
// only the first call has effect.
func (p *PendingQuery) finalize() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	flush := p.Mode == ConsolidationLatest || p.Mode == ConsolidationAuto
	pending := make([]Reply, 0, len(p.seen))
	if flush {
		for _, r := range p.seen {
			pending = append(pending, r)
		}
	}
	p.mu.Unlock()
	for _, r := range pending {
		p.callback(r)
	}
	if p.dropFn != nil {
		p.dropFn()
	}
}
