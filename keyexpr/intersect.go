package keyexpr

// Intersects reports whether some concrete key expression exists that
// both a and b would match, per spec.md §4.3. Both arguments are
// assumed canonical (callers go through New, which canonicalizes).
// Grounded on the chunk-recursive DEFINE_INTERSECT macro of
// original_source/src/rname.c, generalized from that tree's legacy
// single-char '*' wildcard to the zenoh-pico "*" (one chunk) / "**"
// (zero or more chunks) / in-chunk "$*" (substring) wildcard set per
// spec.md §9's precedence note.
func Intersects(a, b string) bool {
	ca, cb := splitChunks(a), splitChunks(b)
	return chunksIntersect(ca, 0, cb, 0)
}

func chunksIntersect(a []string, i int, b []string, j int) bool {
	aEnd, bEnd := i >= len(a), j >= len(b)
	aWild := !aEnd && a[i] == "**"
	bWild := !bEnd && b[j] == "**"
	switch {
	case aEnd && bEnd:
		return true
	case aWild && bEnd:
		return chunksIntersect(a, i+1, b, j)
	case aEnd && bWild:
		return chunksIntersect(a, i, b, j+1)
	case aWild || bWild:
		// At least one side is a "**" chunk: try consuming the other
		// side's current chunk under its umbrella (whichever call
		// advances), independent of which of the two is the wildcard
		// (the macro this mirrors does the same — see rname.c).
		if chunksIntersect(a, i+1, b, j) {
			return true
		}
		return chunksIntersect(a, i, b, j+1)
	case aEnd || bEnd:
		return false
	case chunkIntersect(a[i], b[j]):
		return chunksIntersect(a, i+1, b, j+1)
	default:
		return false
	}
}

// chunkIntersect reports whether two non-"**" chunks can share a
// concrete value. "*" matches any single chunk. Chunks containing the
// "$*" in-chunk wildcard are compared with subChunkIntersect; plain
// literal chunks compare by equality.
func chunkIntersect(a, b string) bool {
	if a == "*" || b == "*" {
		return true
	}
	if a == b {
		return true
	}
	if containsDollarStar(a) || containsDollarStar(b) {
		return subChunkIntersect(a, 0, b, 0)
	}
	return false
}

func containsDollarStar(chunk string) bool {
	for i := 0; i+1 < len(chunk); i++ {
		if chunk[i] == '$' && chunk[i+1] == '*' {
			return true
		}
	}
	return false
}

// dollarStarAt reports whether s has a "$*" token starting at i.
func dollarStarAt(s string, i int) bool {
	return i+1 < len(s) && s[i] == '$' && s[i+1] == '*'
}

// tokenLen returns the width of the token at i: 2 for a "$*" wildcard,
// 1 for a plain character.
func tokenLen(s string, i int) int {
	if dollarStarAt(s, i) {
		return 2
	}
	return 1
}

// subChunkIntersect decides whether two "$*"-wildcarded literal
// patterns can produce the same concrete substring, by the same
// recursive structure as rname.c's DEFINE_INTERSECT macro but with
// "$*" (a 2-byte token) standing in for that tree's single-character
// '*' wildcard — so advancing "the other side" by one unit means one
// character, while advancing a wildcard itself past its own token
// means two.
func subChunkIntersect(a string, ia int, b string, ib int) bool {
	aEnd, bEnd := ia >= len(a), ib >= len(b)
	aWild := !aEnd && dollarStarAt(a, ia)
	bWild := !bEnd && dollarStarAt(b, ib)
	switch {
	case aEnd && bEnd:
		return true
	case aWild && bEnd:
		return subChunkIntersect(a, ia+2, b, ib)
	case aEnd && bWild:
		return subChunkIntersect(a, ia, b, ib+2)
	case aWild || bWild:
		if subChunkIntersect(a, ia+tokenLen(a, ia), b, ib) {
			return true
		}
		return subChunkIntersect(a, ia, b, ib+tokenLen(b, ib))
	case aEnd || bEnd:
		return false
	case a[ia] == b[ib]:
		return subChunkIntersect(a, ia+1, b, ib+1)
	default:
		return false
	}
}

// Includes reports whether every concrete key expression matched by b
// is also matched by a, per spec.md §4.3. This is exact for the common
// case of a literal or single/double-star chunk on either side; for a
// "$*"-wildcarded chunk on the a side it requires b's corresponding
// chunk to be a literal (no nested pattern-vs-pattern containment
// check is attempted — see DESIGN.md Open Questions).
func Includes(a, b string) bool {
	ca, cb := splitChunks(a), splitChunks(b)
	return chunksInclude(ca, 0, cb, 0)
}

func chunksInclude(a []string, i int, b []string, j int) bool {
	aEnd, bEnd := i >= len(a), j >= len(b)
	if !aEnd && a[i] == "**" {
		if chunksInclude(a, i+1, b, j) {
			return true
		}
		if !bEnd {
			return chunksInclude(a, i, b, j+1)
		}
		return false
	}
	if aEnd && bEnd {
		return true
	}
	if aEnd || bEnd {
		return false
	}
	if chunkIncludes(a[i], b[j]) {
		return chunksInclude(a, i+1, b, j+1)
	}
	return false
}

// chunkIncludes reports whether every value matched by chunk b is also
// matched by chunk a.
func chunkIncludes(a, b string) bool {
	if a == b {
		return true
	}
	if a == "*" {
		return b != "**"
	}
	if b == "*" || b == "**" {
		return false
	}
	if containsDollarStar(a) && !containsDollarStar(b) {
		return subChunkIntersect(a, 0, b, 0)
	}
	return false
}

// Equals reports whether a and b are the same canonical key
// expression.
func Equals(a, b string) bool { return a == b }
