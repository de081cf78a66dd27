// Package zerr holds the error taxonomy shared by every layer of the
// core: buffers, codec, key-expression engine, transport, and session.
package zerr

import "fmt"

// Kind enumerates the error taxonomy of spec.md §7.
type Kind int

const (
	// KindOutOfMemory is returned when an allocation fails.
	KindOutOfMemory Kind = iota
	// KindInvalidArgument is returned when caller-supplied data fails a precondition.
	KindInvalidArgument
	// KindNotAvailable is returned for a compiled-out or unsupported feature.
	KindNotAvailable
	// KindBufferNoSpace is returned when a non-expandable write buffer is exhausted.
	KindBufferNoSpace
	// KindNotEnoughBytes is returned when a decode reads past the write cursor.
	KindNotEnoughBytes
	// KindMessageDeserialization is returned when a decoded value is malformed or out of range.
	KindMessageDeserialization
	// KindIOGeneric is returned when a link read or write fails.
	KindIOGeneric
	// KindOpenSnResolution is returned when an OPEN/INIT handshake disagrees on sn_resolution.
	KindOpenSnResolution
	// KindOpenVersionMismatch is returned when the peer's protocol version is incompatible.
	KindOpenVersionMismatch
	// KindOpenOther is returned for any other handshake failure (incl. connection caps).
	KindOpenOther
	// KindConnectionClosed is returned once the peer sends CLOSE or the link drops.
	KindConnectionClosed
	// KindKeyExpr is the umbrella for every §4.3 key-expression canonicalization error.
	KindKeyExpr
	// KindTimeout is returned when a blocking wait exceeds its deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindOutOfMemory:
		return "out of memory"
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotAvailable:
		return "not available"
	case KindBufferNoSpace:
		return "buffer no space"
	case KindNotEnoughBytes:
		return "not enough bytes"
	case KindMessageDeserialization:
		return "message deserialization"
	case KindIOGeneric:
		return "io error"
	case KindOpenSnResolution:
		return "open: sn resolution mismatch"
	case KindOpenVersionMismatch:
		return "open: version mismatch"
	case KindOpenOther:
		return "open: failed"
	case KindConnectionClosed:
		return "connection closed"
	case KindKeyExpr:
		return "key expression"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Newf builds an *Error of the given kind with a formatted message.
func Newf(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind wrapping err.
func Wrap(k Kind, msg string, err error) error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// Is reports whether err is a *Error of kind k.
func Is(err error, k Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == k
}
