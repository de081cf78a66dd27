// Package iobuf provides the zero-copy read buffer and the chained,
// expandable write buffer that the wire codec encodes into and
// decodes out of. Grounded on the teacher's manual byte-offset framing
// in block/block.go (github.com/katzenpost/client/block) and on
// zenoh-pico's src/protocol/iobuf.c.
package iobuf

import (
	"github.com/zenohpico/zenohpico-go/zerr"
)

// RBuf is a byte window with independent read and write cursors over
// an owned or aliased slice. r_pos <= w_pos <= len(buf) is invariant.
type RBuf struct {
	buf  []byte
	rPos int
	wPos int
}

// NewRBuf wraps buf for reading, with the write cursor at the end
// (the whole slice is immediately readable). Used when decoding a
// complete, already-received message.
func NewRBuf(buf []byte) *RBuf {
	return &RBuf{buf: buf, rPos: 0, wPos: len(buf)}
}

// NewRBufCapacity allocates an RBuf with capacity bytes, empty (write
// cursor at zero), for incremental filling by a reader.
func NewRBufCapacity(capacity int) *RBuf {
	return &RBuf{buf: make([]byte, capacity), rPos: 0, wPos: 0}
}

// Len returns the number of unread bytes.
func (b *RBuf) Len() int { return b.wPos - b.rPos }

// CanRead reports whether at least one unread byte remains.
func (b *RBuf) CanRead() bool { return b.Len() > 0 }

// SpaceLeft returns the number of bytes that can still be written
// before the backing slice is full.
func (b *RBuf) SpaceLeft() int { return len(b.buf) - b.wPos }

// Capacity returns the size of the backing slice.
func (b *RBuf) Capacity() int { return len(b.buf) }

// RPos returns the read cursor.
func (b *RBuf) RPos() int { return b.rPos }

// WPos returns the write cursor.
func (b *RBuf) WPos() int { return b.wPos }

// SetRPos rewinds or advances the read cursor; it must not pass WPos.
func (b *RBuf) SetRPos(pos int) error {
	if pos > b.wPos {
		return zerr.New(zerr.KindInvalidArgument, "iobuf: r_pos beyond w_pos")
	}
	b.rPos = pos
	return nil
}

// SetWPos sets the write cursor; it must not exceed capacity.
func (b *RBuf) SetWPos(pos int) error {
	if pos > len(b.buf) {
		return zerr.New(zerr.KindInvalidArgument, "iobuf: w_pos beyond capacity")
	}
	b.wPos = pos
	return nil
}

// ReadByte reads and consumes a single byte.
func (b *RBuf) ReadByte() (byte, error) {
	if !b.CanRead() {
		return 0, zerr.New(zerr.KindNotEnoughBytes, "iobuf: read past w_pos")
	}
	v := b.buf[b.rPos]
	b.rPos++
	return v, nil
}

// ReadBytes consumes and returns exactly n bytes, copied into a fresh
// slice so the caller may retain it past the next Compact.
func (b *RBuf) ReadBytes(n int) ([]byte, error) {
	if b.Len() < n {
		return nil, zerr.New(zerr.KindNotEnoughBytes, "iobuf: read_bytes underrun")
	}
	out := make([]byte, n)
	copy(out, b.buf[b.rPos:b.rPos+n])
	b.rPos += n
	return out, nil
}

// Get returns the byte at an absolute position without consuming it.
func (b *RBuf) Get(pos int) (byte, error) {
	if pos < 0 || pos >= len(b.buf) {
		return 0, zerr.New(zerr.KindInvalidArgument, "iobuf: get out of range")
	}
	return b.buf[pos], nil
}

// WriteByte appends one byte at the write cursor; used while an RBuf
// is being filled directly by a link Recv.
func (b *RBuf) WriteByte(v byte) error {
	if b.SpaceLeft() < 1 {
		return zerr.New(zerr.KindBufferNoSpace, "iobuf: write past capacity")
	}
	b.buf[b.wPos] = v
	b.wPos++
	return nil
}

// WriteBytes appends bs at the write cursor.
func (b *RBuf) WriteBytes(bs []byte) error {
	if b.SpaceLeft() < len(bs) {
		return zerr.New(zerr.KindBufferNoSpace, "iobuf: write_bytes past capacity")
	}
	copy(b.buf[b.wPos:], bs)
	b.wPos += len(bs)
	return nil
}

// WSlice returns the writable tail of the backing slice, for callers
// (like a link Recv) that want to fill it directly without a copy.
func (b *RBuf) WSlice() []byte { return b.buf[b.wPos:] }

// View returns a sub-buffer aliasing the next n readable bytes,
// without consuming them from b. Used to decode a nested message out
// of a slice-framed region (e.g. an attachment) without copying.
func (b *RBuf) View(n int) (*RBuf, error) {
	if b.Len() < n {
		return nil, zerr.New(zerr.KindNotEnoughBytes, "iobuf: view underrun")
	}
	return NewRBuf(b.buf[b.rPos : b.rPos+n]), nil
}

// Compact shifts the unread prefix to the start of the backing slice,
// rewinding both cursors. Used between reads of a streamed link so a
// partially consumed buffer can be refilled from the front.
func (b *RBuf) Compact() {
	if b.rPos == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.rPos:b.wPos])
	b.rPos = 0
	b.wPos = n
}

// Reset rewinds both cursors to zero without touching the backing
// slice's contents.
func (b *RBuf) Reset() {
	b.rPos = 0
	b.wPos = 0
}

// Bytes returns the currently-readable region without consuming it.
func (b *RBuf) Bytes() []byte { return b.buf[b.rPos:b.wPos] }
