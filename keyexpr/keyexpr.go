package keyexpr

import "github.com/zenohpico/zenohpico-go/zerr"

// KeyExpr is a validated, canonicalized key expression, per spec.md
// §3's KeyExpression data model. The zero value is not valid; build
// one with New.
type KeyExpr struct {
	s string
}

// New canonicalizes s and wraps it as a KeyExpr, rejecting anything
// Canonize cannot repair.
func New(s string) (KeyExpr, error) {
	canon, err := Canonize(s)
	if err != nil {
		return KeyExpr{}, err
	}
	return KeyExpr{s: canon}, nil
}

// MustNew is New but panics on error; for static key expressions known
// valid at compile time (tests, examples).
func MustNew(s string) KeyExpr {
	ke, err := New(s)
	if err != nil {
		panic(err)
	}
	return ke
}

// String returns the canonical wire-form string.
func (k KeyExpr) String() string { return k.s }

// IsValid reports whether k was built through New (i.e. is not the
// zero value).
func (k KeyExpr) IsValid() bool { return k.s != "" }

// Intersects reports whether k and o can both match some concrete key.
func (k KeyExpr) Intersects(o KeyExpr) bool { return Intersects(k.s, o.s) }

// Includes reports whether every key matched by o is also matched by k.
func (k KeyExpr) Includes(o KeyExpr) bool { return Includes(k.s, o.s) }

// Equals reports whether k and o are the same canonical key expression.
func (k KeyExpr) Equals(o KeyExpr) bool { return k.s == o.s }

// IsWild reports whether k contains any "*"/"**" chunk, i.e. whether
// it can only be used for subscribing/querying, never for publishing
// (spec.md §4.1: "a Put's key expression must not contain wildcards").
func (k KeyExpr) IsWild() bool {
	for _, c := range splitChunks(k.s) {
		if c == "*" || c == "**" || containsDollarStar(c) {
			return true
		}
	}
	return false
}

// Join concatenates k with a relative suffix, validating the result.
// Mirrors how a WireKeyExpr with both a numeric alias and a suffix
// resolves to a full key expression (spec.md §3).
func Join(prefix KeyExpr, suffix string) (KeyExpr, error) {
	if suffix == "" {
		return prefix, nil
	}
	if !prefix.IsValid() {
		return KeyExpr{}, zerr.New(zerr.KindKeyExpr, "keyexpr: join: invalid prefix")
	}
	return New(prefix.s + "/" + suffix)
}
