// Package keyexpr implements key expression canonicalization and the
// intersect/includes/equals relations used to match publications,
// subscriptions, and queries, per spec.md §4.3. Grounded byte-for-byte
// on zenoh-pico's chunk-state-machine in
// original_source/src/protocol/keyexpr/canonize.c, generalized from C
// pointer/length pairs to Go string slicing.
package keyexpr

import "github.com/zenohpico/zenohpico-go/zerr"

// Status reports why a key expression is or isn't canon, mirroring
// canonize.c's _z_keyexpr_canon_status_t.
type Status int

const (
	StatusOK Status = iota
	StatusEmptyChunk
	StatusLoneDollarStar
	StatusStarInChunk
	StatusSingleStarAfterDoubleStar
	StatusDoubleStarAfterDoubleStar
	StatusDollarAfterDollarOrStar
	StatusSharpOrQMark
	StatusUnboundDollar
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmptyChunk:
		return "empty chunk"
	case StatusLoneDollarStar:
		return "lone $* chunk, must be *"
	case StatusStarInChunk:
		return "unescaped * in chunk"
	case StatusSingleStarAfterDoubleStar:
		return "*/** out of order, must be */**"
	case StatusDoubleStarAfterDoubleStar:
		return "**/** must collapse to **"
	case StatusDollarAfterDollarOrStar:
		return "$*$ or $$ is forbidden"
	case StatusSharpOrQMark:
		return "# or ? is forbidden"
	case StatusUnboundDollar:
		return "$ not bound to a $* wildcard"
	default:
		return "unknown"
	}
}

// isChunkCanon validates a single chunk's interior: '#'/'?' are always
// forbidden, '$' must always be immediately followed by '*' (and never
// preceded by one), and bare '*' is only legal as the sole content of
// a chunk (handled by the caller before this runs).
func isChunkCanon(chunk string) Status {
	inDollar := 0
	for i := 0; i < len(chunk); i++ {
		switch chunk[i] {
		case '#', '?':
			return StatusSharpOrQMark
		case '$':
			if inDollar != 0 {
				return StatusDollarAfterDollarOrStar
			}
			inDollar = 1
		case '*':
			if inDollar != 1 {
				return StatusStarInChunk
			}
			inDollar = 2
		default:
			if inDollar == 1 {
				return StatusUnboundDollar
			}
			inDollar = 0
		}
	}
	if inDollar == 1 {
		return StatusUnboundDollar
	}
	return StatusOK
}

// IsCanon reports whether ke is already in canonical form.
func IsCanon(ke string) Status {
	if ke == "" {
		return StatusEmptyChunk
	}
	inBigWild := false
	chunks := splitChunks(ke)
	for _, c := range chunks {
		switch {
		case c == "":
			return StatusEmptyChunk
		case c == "*":
			inBigWild = false
		case c == "$*":
			return StatusLoneDollarStar
		case c == "**":
			if inBigWild {
				return StatusDoubleStarAfterDoubleStar
			}
			inBigWild = true
			continue
		default:
			if inBigWild {
				// a single "*" right after "**" must be reordered to */**.
				if c == "*" {
					return StatusSingleStarAfterDoubleStar
				}
			}
			inBigWild = false
			if st := isChunkCanon(c); st != StatusOK {
				return st
			}
		}
	}
	return StatusOK
}

func splitChunks(ke string) []string {
	var out []string
	start := 0
	for i := 0; i < len(ke); i++ {
		if ke[i] == '/' {
			out = append(out, ke[start:i])
			start = i + 1
		}
	}
	out = append(out, ke[start:])
	return out
}

// singleify collapses any run of two or more consecutive "$*" tokens
// into a single "$*", mirroring canonize.c's _zp_singleify pre-pass
// (run once over the whole key expression before the chunk machine,
// since "$*" never straddles a '/').
func singleify(s string) string {
	buf := make([]byte, 0, len(s))
	i := 0
	lastWasDollarStar := false
	for i < len(s) {
		if i+1 < len(s) && s[i] == '$' && s[i+1] == '*' {
			if !lastWasDollarStar {
				buf = append(buf, '$', '*')
				lastWasDollarStar = true
			}
			i += 2
			continue
		}
		buf = append(buf, s[i])
		lastWasDollarStar = false
		i++
	}
	return string(buf)
}

// Canonize rewrites ke into canonical form: runs of consecutive "$*"
// collapse to one, every lone "$*" chunk becomes "*", every "**/*"
// becomes "*/**", and every "**/**" collapses to "**". It returns an
// error for anything canonicalization cannot repair (bad characters,
// an unbound '$', a '*' loose inside a chunk).
func Canonize(ke string) (string, error) {
	chunks := splitChunks(singleify(ke))
	out := make([]string, 0, len(chunks))
	bigWildPending := false
	for _, c := range chunks {
		switch {
		case c == "":
			return "", zerr.New(zerr.KindKeyExpr, "keyexpr: empty chunk")
		case c == "$*":
			c = "*"
		case c == "**":
			if bigWildPending {
				continue // **/** -> **
			}
			bigWildPending = true
			out = append(out, c)
			continue
		}
		if c == "*" && bigWildPending {
			// */** reordering: emit "*" then the pending "**" after it.
			// The "**" stays pending so a further "**/**" still collapses.
			out[len(out)-1] = "*"
			out = append(out, "**")
			continue
		}
		if c != "*" && c != "**" {
			if st := isChunkCanon(c); st != StatusOK {
				return "", zerr.Newf(zerr.KindKeyExpr, "keyexpr: %s in chunk %q", st, c)
			}
		}
		bigWildPending = false
		out = append(out, c)
	}
	if len(out) == 0 {
		return "", zerr.New(zerr.KindKeyExpr, "keyexpr: empty key expression")
	}
	result := joinChunks(out)
	if st := IsCanon(result); st != StatusOK {
		return "", zerr.Newf(zerr.KindKeyExpr, "keyexpr: could not canonicalize (%s)", st)
	}
	return result, nil
}

func joinChunks(chunks []string) string {
	total := len(chunks) - 1
	for _, c := range chunks {
		total += len(c)
	}
	buf := make([]byte, 0, total)
	for i, c := range chunks {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, c...)
	}
	return string(buf)
}
