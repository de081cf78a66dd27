package session

import (
	"github.com/zenohpico/zenohpico-go/collections"
	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/wire"
)

// Sample is a delivered publication, per spec.md §3's Sample model.
// Attachment is the optional out-of-band byte string supplemented from
// zenoh-pico's queryable/publisher attachment support; nil when the
// publisher sent none.
type Sample struct {
	Key        keyexpr.KeyExpr
	Payload    []byte
	IsDelete   bool
	Encoding   wire.Encoding
	Ts         *wire.Timestamp
	Attachment []byte
}

// Subscription is a registered interest in a key expression, per
// spec.md §3. IsLocal distinguishes a handle created by this process's
// own DeclareSubscriber call from a bookkeeping-only entry (this core
// never synthesizes the latter; the field is carried for symmetry with
// the wire model and possible remote-subscription introspection).
type Subscription struct {
	EntityID uint64
	Key      keyexpr.KeyExpr
	Reliable bool
	IsLocal  bool

	callback func(Sample)
	dropFn   func()
}

// Callback invokes the subscriber's registered callback for sample.
func (s *Subscription) Callback(sample Sample) {
	if s.callback != nil {
		s.callback(sample)
	}
}

// Close runs the subscriber's drop function, if any. Idempotent only
// in the sense that a nil dropFn is a no-op; callers must not invoke
// Close twice expecting a second run's side effects.
func (s *Subscription) Close() {
	if s.dropFn != nil {
		s.dropFn()
	}
}

// SubscriptionRegistry is the per-session table of active
// subscriptions, indexed by entity id per spec.md §4.4's Declaration
// model, with linear match-resolution scans over key-expression
// intersection (spec.md §4.4's Match resolution).
type SubscriptionRegistry struct {
	byID *collections.IntMap[*Subscription]
}

// NewSubscriptionRegistry creates an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{byID: collections.NewIntMap[*Subscription]()}
}

// Add registers sub under its EntityID.
func (r *SubscriptionRegistry) Add(sub *Subscription) {
	r.byID.Set(sub.EntityID, sub)
}

// Remove drops the subscription at id, if any.
func (r *SubscriptionRegistry) Remove(id uint64) (*Subscription, bool) {
	sub, ok := r.byID.Get(id)
	if ok {
		r.byID.Delete(id)
	}
	return sub, ok
}

// Matching returns every subscription whose key expression intersects
// ke, per spec.md §4.4's "scan local subscribers ... whose canonical
// keys intersect" rule.
func (r *SubscriptionRegistry) Matching(ke keyexpr.KeyExpr) []*Subscription {
	var out []*Subscription
	r.byID.Range(func(_ uint64, sub *Subscription) bool {
		if sub.Key.Intersects(ke) {
			out = append(out, sub)
		}
		return true
	})
	return out
}
