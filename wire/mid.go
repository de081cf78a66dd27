package wire

import (
	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// ProtocolVersion is the wire version this codec speaks, advertised in
// INIT (spec.md §4.5 step 1) and checked on the peer's INIT ack.
const ProtocolVersion uint8 = 0x09

// Transport message ids (low 5 bits of the header byte), per spec.md §4.2.
const (
	MidInit      byte = 0x01
	MidOpen      byte = 0x02
	MidJoin      byte = 0x03
	MidClose     byte = 0x04
	MidKeepAlive byte = 0x05
	MidFrame     byte = 0x06
	MidFragment  byte = 0x07
)

// Network message ids, carried inside FRAME/FRAGMENT payloads.
const (
	NMidDeclare       byte = 0x01
	NMidUndeclare     byte = 0x02
	NMidPush          byte = 0x03
	NMidRequest       byte = 0x04
	NMidResponse      byte = 0x05
	NMidResponseFinal byte = 0x06
	NMidInterest      byte = 0x07
)

// Header flag bits, occupying the high 3 bits of the header byte.
// Meaning is per-MID; named here by the role each bit plays across
// the message set described in spec.md §4.2/§4.5/§4.6.
const (
	flagA byte = 0x20 // INIT/OPEN: ack (vs. syn)
	flagS byte = 0x40 // INIT/JOIN: qos flag present / sn_resolution present
	flagZ byte = 0x80 // CLOSE: link-only (vs. whole session); JOIN: unused

	flagR byte = 0x20 // FRAME/FRAGMENT: reliable (vs. best-effort)
	flagM byte = 0x40 // FRAGMENT: more fragments follow
)

const midMask = 0x1f

// EncodeHeader packs a MID and a set of OR'd flag bits into one byte.
func EncodeHeader(mid byte, flags byte) byte {
	return (mid & midMask) | (flags &^ midMask)
}

// DecodeHeader splits a header byte into its MID and flag bits.
func DecodeHeader(h byte) (mid byte, flags byte) {
	return h & midMask, h &^ midMask
}

func writeHeader(w *iobuf.WBuf, mid, flags byte) error {
	return w.WriteByte(EncodeHeader(mid, flags))
}

func readHeader(r *iobuf.RBuf) (mid byte, flags byte, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, zerr.Wrap(zerr.KindNotEnoughBytes, "header: decode", err)
	}
	mid, flags = DecodeHeader(b)
	return mid, flags, nil
}
