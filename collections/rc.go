package collections

import "sync"

// Rc is a reference-counted handle around a value with a close
// action, used where spec.md §9 distinguishes an "owned" handle (last
// reference runs Close) from a "loaned" one (reference only, never
// runs Close) — e.g. a Session shared between a Publisher and several
// Subscribers built on top of it, or a transport Link shared between a
// session's read task and its lease task.
type Rc[V any] struct {
	mu     *sync.Mutex
	count  *int
	value  V
	closer func(V) error
	closed *bool
}

// NewRc wraps v with an initial reference count of 1. closer runs
// exactly once, when the last reference is released.
func NewRc[V any](v V, closer func(V) error) *Rc[V] {
	count := 1
	closed := false
	return &Rc[V]{
		mu:     &sync.Mutex{},
		count:  &count,
		value:  v,
		closer: closer,
		closed: &closed,
	}
}

// Value returns the wrapped value. Valid until the last reference
// (including this one) is released.
func (r *Rc[V]) Value() V { return r.value }

// Loan returns a new handle to the same value, incrementing the
// reference count. The returned handle must itself be Released exactly
// once.
func (r *Rc[V]) Loan() *Rc[V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.count++
	return &Rc[V]{mu: r.mu, count: r.count, value: r.value, closer: r.closer, closed: r.closed}
}

// Release decrements the reference count, running closer when it
// reaches zero. Safe to call more than once per handle only if the
// caller no longer holds any other reference obtained from this one;
// Release is not itself idempotent across repeated calls on the same
// handle.
func (r *Rc[V]) Release() error {
	r.mu.Lock()
	*r.count--
	last := *r.count <= 0 && !*r.closed
	if last {
		*r.closed = true
	}
	r.mu.Unlock()
	if last && r.closer != nil {
		return r.closer(r.value)
	}
	return nil
}

// Count returns the current reference count, for tests and diagnostics.
func (r *Rc[V]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.count
}
