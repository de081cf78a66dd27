// Package transport defines the Link capability transports consume,
// per spec.md §6. Link drivers (TCP, UDP, TLS) are OUT OF SCOPE for
// this core (spec.md §1's Non-goals) — this package is the boundary
// an external link driver implements against, grounded on the
// teacher's `listener.go` accept-loop idiom for what a Go net.Conn/
// net.PacketConn-backed implementation looks like.
package transport

import (
	"io"
	"net"
)

// Link is the transport-agnostic I/O capability a connection or
// multicast group provides, per spec.md §6. A concrete link driver
// (e.g. TCP, UDP, TLS) wraps a net.Conn/net.PacketConn to satisfy it;
// none are implemented here since link drivers are explicitly out of
// scope.
type Link interface {
	// Send writes one already-framed message; for a datagram link this
	// must be exactly one datagram.
	Send(b []byte) error
	// Recv reads into buf, returning the number of bytes read (and, for
	// a multicast/datagram link, the sender's address).
	Recv(buf []byte) (n int, src net.Addr, err error)
	// RecvExact blocks until exactly len(buf) bytes have been read into
	// buf, used by stream links to fill a length-prefixed frame.
	RecvExact(buf []byte) error

	IsStreamed() bool
	IsMulticast() bool
	IsReliable() bool
	MTU() int
	SrcLocator() string
	DstLocator() string

	io.Closer
}
