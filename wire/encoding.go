package wire

import (
	"github.com/zenohpico/zenohpico-go/iobuf"
)

const encodingFlagSchema = 0x01

// Encoding is a (id, optional schema) pair describing a payload's
// content type, per spec.md §3/§4.2.
type Encoding struct {
	ID     uint16
	Schema []byte // nil when absent
}

// HasSchema reports whether Schema is present on the wire.
func (e Encoding) HasSchema() bool { return e.Schema != nil }

// EncodeEncoding writes en as a zint where bit 0 flags a following
// schema slice and bits 1..15 carry the id.
func EncodeEncoding(w *iobuf.WBuf, en Encoding) error {
	v := uint64(en.ID) << 1
	if en.HasSchema() {
		v |= encodingFlagSchema
	}
	if err := EncodeZint(w, v); err != nil {
		return err
	}
	if en.HasSchema() {
		return EncodeSlice(w, en.Schema)
	}
	return nil
}

// DecodeEncoding reads an Encoding written by EncodeEncoding.
func DecodeEncoding(r *iobuf.RBuf) (Encoding, error) {
	v, err := DecodeZint(r)
	if err != nil {
		return Encoding{}, err
	}
	en := Encoding{ID: uint16(v >> 1)}
	if v&encodingFlagSchema != 0 {
		schema, err := DecodeSlice(r)
		if err != nil {
			return Encoding{}, err
		}
		en.Schema = schema
	}
	return en, nil
}
