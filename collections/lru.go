package collections

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryableCache memoizes the set of locally-matching queryable ids
// for a query's key expression, per spec.md §9's "LRU cache for
// queryable lookups" design note: a session with many declared
// queryables would otherwise re-walk every queryable's key expression
// against every incoming RequestMessage.
type QueryableCache struct {
	c *lru.Cache[string, []uint64]
}

// NewQueryableCache creates a cache holding up to size entries. Sourced
// from the pack's `hashicorp/golang-lru/v2` (seen in
// `orbas1-Synnergy/go.mod`), the one pack repo carrying that
// dependency.
func NewQueryableCache(size int) (*QueryableCache, error) {
	c, err := lru.New[string, []uint64](size)
	if err != nil {
		return nil, err
	}
	return &QueryableCache{c: c}, nil
}

// Lookup returns the cached queryable id list for selector, if present.
func (q *QueryableCache) Lookup(selector string) ([]uint64, bool) {
	return q.c.Get(selector)
}

// Store caches ids as the matching queryable set for selector.
func (q *QueryableCache) Store(selector string, ids []uint64) {
	q.c.Add(selector, ids)
}

// Invalidate drops every cached entry, called whenever a queryable is
// declared or undeclared since any cached selector's match set may now
// be stale.
func (q *QueryableCache) Invalidate() {
	q.c.Purge()
}

// Len returns the number of entries currently cached.
func (q *QueryableCache) Len() int {
	return q.c.Len()
}
