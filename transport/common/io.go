package common

import (
	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/transport"
	"github.com/zenohpico/zenohpico-go/wire"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// WriteMessage frames and sends one transport message over l,
// choosing stream (length-prefixed) or datagram framing per
// l.IsStreamed(), per spec.md §4.2.
func WriteMessage(l transport.Link, m wire.TransportMessage) error {
	if l.IsStreamed() {
		framed, err := wire.WriteStreamFrame(m)
		if err != nil {
			return err
		}
		return l.Send(framed)
	}
	framed, err := wire.WriteDatagramFrame(m)
	if err != nil {
		return err
	}
	return l.Send(framed)
}

// ReadMessage blocks until one complete transport message has been
// read from l, per spec.md §4.2. For a streamed link it reads the
// 2-byte length prefix then exactly that many body bytes; for a
// datagram link one Recv call already yields one complete message.
func ReadMessage(l transport.Link) (wire.TransportMessage, error) {
	if l.IsStreamed() {
		lenBuf := make([]byte, 2)
		if err := l.RecvExact(lenBuf); err != nil {
			return nil, zerr.Wrap(zerr.KindIOGeneric, "readmessage: length prefix", err)
		}
		n := int(lenBuf[0]) | int(lenBuf[1])<<8
		if n > wire.MaxBatchSize {
			return nil, zerr.Newf(zerr.KindMessageDeserialization, "readmessage: frame of %d bytes exceeds batch size", n)
		}
		body := make([]byte, n)
		if err := l.RecvExact(body); err != nil {
			return nil, zerr.Wrap(zerr.KindIOGeneric, "readmessage: body", err)
		}
		return wire.DecodeTransportMessage(iobuf.NewRBuf(body))
	}
	buf := make([]byte, wire.MaxBatchSize)
	n, _, err := l.Recv(buf)
	if err != nil {
		return nil, zerr.Wrap(zerr.KindIOGeneric, "readmessage: datagram recv", err)
	}
	return wire.ReadDatagramFrame(buf[:n])
}
