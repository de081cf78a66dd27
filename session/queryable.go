package session

import (
	"sync"
	"sync/atomic"

	"github.com/zenohpico/zenohpico-go/collections"
	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/wire"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// Queryable answers REQUEST messages matching Key, per spec.md §3.
// Complete/Distance are the cost hints §4.4's TargetBestMatching
// selection picks amongst several matching queryables.
type Queryable struct {
	EntityID uint64
	Key      keyexpr.KeyExpr
	Complete bool
	Distance uint64

	callback func(*Query)
	dropFn   func()
}

// Dispatch invokes the queryable's registered callback with q.
func (qy *Queryable) Dispatch(q *Query) {
	if qy.callback != nil {
		qy.callback(q)
	}
}

// Close runs the queryable's drop function, if any.
func (qy *Queryable) Close() {
	if qy.dropFn != nil {
		qy.dropFn()
	}
}

// QueryableRegistry is the per-session table of active queryables,
// indexed by entity id, with the same intersection-scan match
// resolution as SubscriptionRegistry.
type QueryableRegistry struct {
	byID *collections.IntMap[*Queryable]
}

// NewQueryableRegistry creates an empty registry.
func NewQueryableRegistry() *QueryableRegistry {
	return &QueryableRegistry{byID: collections.NewIntMap[*Queryable]()}
}

// Add registers qy under its EntityID.
func (r *QueryableRegistry) Add(qy *Queryable) {
	r.byID.Set(qy.EntityID, qy)
}

// Remove drops the queryable at id, if any.
func (r *QueryableRegistry) Remove(id uint64) (*Queryable, bool) {
	qy, ok := r.byID.Get(id)
	if ok {
		r.byID.Delete(id)
	}
	return qy, ok
}

// Matching returns every queryable whose key expression intersects ke.
func (r *QueryableRegistry) Matching(ke keyexpr.KeyExpr) []*Queryable {
	var out []*Queryable
	r.byID.Range(func(_ uint64, qy *Queryable) bool {
		if qy.Key.Intersects(ke) {
			out = append(out, qy)
		}
		return true
	})
	return out
}

// Best picks the single queryable TargetBestMatching should reach:
// complete queryables win over incomplete ones, ties broken by the
// lower DistanceLow cost hint (spec.md §3/§4.4).
func Best(matches []*Queryable) *Queryable {
	if len(matches) == 0 {
		return nil
	}
	best := matches[0]
	for _, qy := range matches[1:] {
		if qy.Complete != best.Complete {
			if qy.Complete {
				best = qy
			}
			continue
		}
		if qy.Distance < best.Distance {
			best = qy
		}
	}
	return best
}

// Query is one REQUEST delivered to a local Queryable, per spec.md
// §4.4's Queryable path. Reply sends zero or more RESPONSE messages
// back to the requester; Finalize (called automatically once every
// Queryable a request was routed to has dropped its Query, or by the
// callback explicitly) sends the closing RESPONSE_FINAL.
type Query struct {
	Key        keyexpr.KeyExpr
	Selector   string
	Payload    []byte
	Encoding   wire.Encoding
	Attachment []byte

	peerID    uint64
	requestID uint64
	sess      *Session

	mu       sync.Mutex
	finished bool
}

// Reply sends sample back to the requester as one RESPONSE. Safe to
// call more than once per Query (a queryable may answer with several
// samples); invalid after Finalize.
func (q *Query) Reply(sample Sample) error {
	q.mu.Lock()
	done := q.finished
	q.mu.Unlock()
	if done {
		return zerr.New(zerr.KindInvalidArgument, "session: reply after query finalized")
	}
	return q.sess.sendResponse(q.peerID, q.requestID, sample)
}

// ReplyErr sends an error reply in place of a value, per spec.md §4.4.
func (q *Query) ReplyErr(enc wire.Encoding, payload []byte) error {
	q.mu.Lock()
	done := q.finished
	q.mu.Unlock()
	if done {
		return zerr.New(zerr.KindInvalidArgument, "session: reply after query finalized")
	}
	return q.sess.sendResponseErr(q.peerID, q.requestID, enc, payload)
}

// Finalize marks this Query's queryable as done answering. Once every
// queryable a request was routed to has finalized, the session sends
// the request's single RESPONSE_FINAL.
func (q *Query) Finalize() {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return
	}
	q.finished = true
	q.mu.Unlock()
	q.sess.finalizeInboundQuery(q.peerID, q.requestID)
}

// inboundQueryKey identifies one in-flight REQUEST being served locally.
// request ids are only unique per-requester, so the peer id that sent
// the REQUEST must be part of the key (spec.md §4.4).
type inboundQueryKey struct {
	peerID    uint64
	requestID uint64
}

// inboundQuery tracks how many dispatched Query handles still owe a
// Finalize before the session may send RESPONSE_FINAL.
type inboundQuery struct {
	remaining atomic.Int32
}

type inboundQueryTable struct {
	mu sync.Mutex
	m  map[inboundQueryKey]*inboundQuery
}

func newInboundQueryTable() *inboundQueryTable {
	return &inboundQueryTable{m: make(map[inboundQueryKey]*inboundQuery)}
}

func (t *inboundQueryTable) start(key inboundQueryKey, n int) *inboundQuery {
	iq := &inboundQuery{}
	iq.remaining.Store(int32(n))
	t.mu.Lock()
	t.m[key] = iq
	t.mu.Unlock()
	return iq
}

// finalize decrements the outstanding count for key and reports
// whether this call brought it to zero (i.e. RESPONSE_FINAL is now
// due), removing the entry in that case.
func (t *inboundQueryTable) finalize(key inboundQueryKey) bool {
	t.mu.Lock()
	iq, ok := t.m[key]
	if !ok {
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()
	if iq.remaining.Add(-1) != 0 {
		return false
	}
	t.mu.Lock()
	delete(t.m, key)
	t.mu.Unlock()
	return true
}
