package wire

import (
	"github.com/zenohpico/zenohpico-go/iobuf"
)

// MappingKind tags how a WireKeyExpr's numeric alias should be
// resolved, per spec.md §3 ("a KE is either local or remote").
type MappingKind byte

const (
	MappingLocal         MappingKind = 0
	MappingUnknownRemote MappingKind = 1
	MappingRemotePeer    MappingKind = 2
)

const wireKeFlagSuffix = 0x01

// WireKeyExpr is the on-the-wire form of a key expression: a numeric
// alias (0 = none), an optional suffix string, and a mapping tag, per
// spec.md §3's KeyExpression data model.
type WireKeyExpr struct {
	ID      uint64
	Suffix  string // present when ID == 0, or additionally as a relative suffix
	Mapping MappingKind
	PeerID  uint64 // valid only when Mapping == MappingRemotePeer
}

// HasSuffix reports whether a suffix string follows ID on the wire.
func (k WireKeyExpr) HasSuffix() bool { return k.ID == 0 || k.Suffix != "" }

// EncodeKeyExpr writes a WireKeyExpr: zint ID (bit 0 flags a following
// suffix), optional suffix string, one mapping byte, and (only for a
// remote-peer mapping) a zint peer id.
func EncodeKeyExpr(w *iobuf.WBuf, k WireKeyExpr) error {
	v := k.ID << 1
	hasSuffix := k.HasSuffix()
	if hasSuffix {
		v |= wireKeFlagSuffix
	}
	if err := EncodeZint(w, v); err != nil {
		return err
	}
	if hasSuffix {
		if err := EncodeString(w, k.Suffix); err != nil {
			return err
		}
	}
	if err := w.WriteByte(byte(k.Mapping)); err != nil {
		return err
	}
	if k.Mapping == MappingRemotePeer {
		if err := EncodeZint(w, k.PeerID); err != nil {
			return err
		}
	}
	return nil
}

// DecodeKeyExpr reads a WireKeyExpr written by EncodeKeyExpr.
func DecodeKeyExpr(r *iobuf.RBuf) (WireKeyExpr, error) {
	v, err := DecodeZint(r)
	if err != nil {
		return WireKeyExpr{}, err
	}
	k := WireKeyExpr{ID: v >> 1}
	if v&wireKeFlagSuffix != 0 {
		suffix, err := DecodeString(r)
		if err != nil {
			return WireKeyExpr{}, err
		}
		k.Suffix = suffix
	}
	mb, err := r.ReadByte()
	if err != nil {
		return WireKeyExpr{}, err
	}
	k.Mapping = MappingKind(mb)
	if k.Mapping == MappingRemotePeer {
		peerID, err := DecodeZint(r)
		if err != nil {
			return WireKeyExpr{}, err
		}
		k.PeerID = peerID
	}
	return k, nil
}
