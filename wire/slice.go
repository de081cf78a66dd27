package wire

import (
	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// EncodeSlice writes a zint length followed by the raw bytes of bs.
func EncodeSlice(w *iobuf.WBuf, bs []byte) error {
	if err := EncodeZint(w, uint64(len(bs))); err != nil {
		return err
	}
	return w.WriteBytes(bs)
}

// DecodeSlice reads a zint-length-prefixed byte slice.
func DecodeSlice(r *iobuf.RBuf) ([]byte, error) {
	n, err := DecodeZsize(r)
	if err != nil {
		return nil, err
	}
	if uint64(r.Len()) < n {
		return nil, zerr.New(zerr.KindNotEnoughBytes, "slice: decode underrun")
	}
	return r.ReadBytes(int(n))
}

// EncodeString writes a zint-length-prefixed string; the wire form is
// never null-terminated.
func EncodeString(w *iobuf.WBuf, s string) error {
	return EncodeSlice(w, []byte(s))
}

// DecodeString reads a zint-length-prefixed string.
func DecodeString(r *iobuf.RBuf) (string, error) {
	bs, err := DecodeSlice(r)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}
