package wire

import (
	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// MaxBatchSize bounds a single serialized transport message (and thus
// a single stream-framed unit), matching zenoh-pico's default
// batch size used during capability negotiation (spec.md §4.5 INIT's
// BatchSize field).
const MaxBatchSize = 1 << 16

// WriteStreamFrame serializes msg, prefixes it with its length as a
// little-endian uint16 (spec.md §4.2: "stream links are length-
// delimited, datagram links are one message per datagram"), and
// returns the complete framed bytes ready for a stream link's Send.
func WriteStreamFrame(msg TransportMessage) ([]byte, error) {
	body := iobuf.NewWBuf(256, true)
	if err := EncodeTransportMessage(body, msg); err != nil {
		return nil, err
	}
	n := body.Len()
	if n > MaxBatchSize {
		return nil, zerr.Newf(zerr.KindBufferNoSpace, "framing: message of %d bytes exceeds batch size %d", n, MaxBatchSize)
	}
	framed := iobuf.NewWBuf(2+n, false)
	if err := EncodeUint16(framed, uint16(n)); err != nil {
		return nil, err
	}
	if err := framed.WriteBytes(body.ToRBuf().Bytes()); err != nil {
		return nil, err
	}
	return framed.ToRBuf().Bytes(), nil
}

// ReadStreamFrameLen decodes the 2-byte length prefix off the front of
// r, returning the number of body bytes that should be read next. The
// caller (a stream link's read loop) is expected to have already
// ensured at least 2 bytes are available.
func ReadStreamFrameLen(r *iobuf.RBuf) (int, error) {
	n, err := DecodeUint16(r)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// WriteDatagramFrame serializes msg with no length prefix: a datagram
// link's transport (e.g. UDP) already preserves message boundaries,
// per spec.md §4.2/§4.6.
func WriteDatagramFrame(msg TransportMessage) ([]byte, error) {
	w := iobuf.NewWBuf(256, true)
	if err := EncodeTransportMessage(w, msg); err != nil {
		return nil, err
	}
	if w.Len() > MaxBatchSize {
		return nil, zerr.Newf(zerr.KindBufferNoSpace, "framing: datagram of %d bytes exceeds batch size %d", w.Len(), MaxBatchSize)
	}
	return w.ToRBuf().Bytes(), nil
}

// ReadDatagramFrame decodes a single complete transport message out of
// one received datagram.
func ReadDatagramFrame(datagram []byte) (TransportMessage, error) {
	return DecodeTransportMessage(iobuf.NewRBuf(datagram))
}

// SplitNetworkMessages decodes every network message packed into a
// FRAME/FRAGMENT payload, in order. Several Declare/Push/Request
// messages may share one FRAME (spec.md §4.2).
func SplitNetworkMessages(payload []byte) ([]NetworkMessage, error) {
	r := iobuf.NewRBuf(payload)
	var out []NetworkMessage
	for r.CanRead() {
		m, err := DecodeNetworkMessage(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// JoinNetworkMessages serializes a sequence of network messages into
// one FRAME/FRAGMENT payload.
func JoinNetworkMessages(msgs []NetworkMessage) ([]byte, error) {
	w := iobuf.NewWBuf(256, true)
	for _, m := range msgs {
		if err := EncodeNetworkMessage(w, m); err != nil {
			return nil, err
		}
	}
	return w.ToRBuf().Bytes(), nil
}
