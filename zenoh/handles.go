package zenoh

import (
	"time"

	"github.com/zenohpico/zenohpico-go/collections"
	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/session"
	"github.com/zenohpico/zenohpico-go/wire"
)

// Subscriber is an owned handle over a session.Subscription: Close
// retracts the subscription and releases the owning Session's
// reference count (spec.md §3's "shared across API handles").
type Subscriber struct {
	sub *session.Subscription
	rc  *collections.Rc[*session.Session]
}

// Close retracts the subscription.
func (s *Subscriber) Close() error {
	s.sub.Close()
	return s.rc.Release()
}

// Queryable is an owned handle over a session.Queryable.
type Queryable struct {
	qy *session.Queryable
	rc *collections.Rc[*session.Session]
}

// Close retracts the queryable.
func (q *Queryable) Close() error {
	q.qy.Close()
	return q.rc.Release()
}

// Publisher is an ergonomic handle bound to one key expression,
// reissuing Put/Delete against its owning Session without the caller
// repeating the key each time (spec.md §3's Publisher entity).
type Publisher struct {
	ke       keyexpr.KeyExpr
	enc      wire.Encoding
	reliable bool
	cc       session.CongestionControl
	rc       *collections.Rc[*session.Session]
}

// Put publishes payload through this publisher.
func (p *Publisher) Put(payload []byte, attachment []byte) error {
	return p.rc.Value().Put(p.ke, payload, p.enc, attachment, p.reliable, p.cc)
}

// Delete publishes a deletion through this publisher.
func (p *Publisher) Delete() error {
	return p.rc.Value().Delete(p.ke, p.reliable, p.cc)
}

// Close releases this Publisher's reference to the owning Session.
// Unlike Subscriber/Queryable there is no network UNDECLARE to send:
// a Publisher is a local send-side convenience, not a declared entity
// a remote peer needs to be told about (spec.md §4.4's Declaration
// model only covers subscribers/queryables).
func (p *Publisher) Close() error { return p.rc.Release() }

// Querier is an ergonomic handle bound to one key expression and
// query policy, reissuing Get against its owning Session (spec.md §3's
// Querier entity).
type Querier struct {
	ke      keyexpr.KeyExpr
	target  wire.QueryTarget
	mode    session.ConsolidationMode
	timeout time.Duration
	rc      *collections.Rc[*session.Session]
}

// Get issues a query through this querier.
func (q *Querier) Get(selector string, payload []byte, enc wire.Encoding, attachment []byte, callback func(session.Reply), dropFn func()) (*session.PendingQuery, error) {
	return q.rc.Value().Get(q.ke, selector, q.target, q.mode, q.timeout, payload, enc, attachment, callback, dropFn)
}

// Close releases this Querier's reference to the owning Session.
func (q *Querier) Close() error { return q.rc.Release() }
