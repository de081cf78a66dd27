package iobuf

import "github.com/zenohpico/zenohpico-go/zerr"

// slice is one fixed-capacity chunk of a WBuf, equivalent to
// zenoh-pico's _z_iosli_t used only from the write side.
type slice struct {
	buf      []byte
	rPos     int
	wPos     int
	capacity int
}

func newSlice(capacity int) *slice {
	return &slice{buf: make([]byte, capacity), capacity: capacity}
}

func (s *slice) readable() int { return s.wPos - s.rPos }
func (s *slice) writable() int { return s.capacity - s.wPos }

// WBuf is a sequence of fixed-size slices plus an expansion step: once
// the current slice is full, a new one of expansionStep bytes is
// appended if expansionStep > 0 (is_expandable in zenoh-pico).
// Mirrors the offset-juggling style of the teacher's block.go
// marshaler, generalized to chained, growable storage.
type WBuf struct {
	slices        []*slice
	rIdx          int
	wIdx          int
	expansionStep int
	expandable    bool
}

// NewWBuf creates a WBuf with one slice of the given capacity.
// expandable selects whether SpaceLeft exhaustion grows a new slice
// (of the same capacity, per zenoh-pico) or returns BufferNoSpace.
func NewWBuf(capacity int, expandable bool) *WBuf {
	w := &WBuf{expansionStep: capacity, expandable: expandable}
	if capacity > 0 {
		w.slices = append(w.slices, newSlice(capacity))
	}
	return w
}

func (w *WBuf) cur() *slice { return w.slices[w.wIdx] }

func (w *WBuf) growOne(minCapacity int) {
	cap := w.expansionStep
	if cap <= 0 {
		cap = minCapacity
	}
	for cap < minCapacity {
		cap *= 2
	}
	w.slices = append(w.slices, newSlice(cap))
	w.wIdx = len(w.slices) - 1
}

// SpaceLeft returns the writable bytes remaining in the current slice
// (matches zenoh-pico's per-slice semantics, not the global total).
func (w *WBuf) SpaceLeft() int {
	if len(w.slices) == 0 {
		return 0
	}
	return w.cur().writable()
}

// WriteByte appends a single byte, expanding if permitted.
func (w *WBuf) WriteByte(b byte) error {
	if len(w.slices) == 0 || w.cur().writable() < 1 {
		if !w.expandable {
			return zerr.New(zerr.KindBufferNoSpace, "wbuf: no space")
		}
		w.growOne(1)
	}
	s := w.cur()
	s.buf[s.wPos] = b
	s.wPos++
	return nil
}

// WriteBytes appends bs, spilling into freshly grown slices as needed.
func (w *WBuf) WriteBytes(bs []byte) error {
	if len(w.slices) == 0 {
		if !w.expandable {
			return zerr.New(zerr.KindBufferNoSpace, "wbuf: no space")
		}
		w.growOne(len(bs))
	}
	s := w.cur()
	if s.writable() >= len(bs) {
		copy(s.buf[s.wPos:], bs)
		s.wPos += len(bs)
		return nil
	}
	if !w.expandable {
		return zerr.New(zerr.KindBufferNoSpace, "wbuf: no space")
	}
	// Fill what's left of the current slice, then allocate a slice
	// large enough to hold the remainder.
	remain := bs
	if avail := s.writable(); avail > 0 {
		copy(s.buf[s.wPos:], remain[:avail])
		s.wPos += avail
		remain = remain[avail:]
	}
	w.growOne(len(remain))
	s = w.cur()
	copy(s.buf[s.wPos:], remain)
	s.wPos += len(remain)
	return nil
}

// Put overwrites the byte at an absolute logical position (used to
// patch in a length prefix after the payload is already written).
func (w *WBuf) Put(b byte, pos int) error {
	for _, s := range w.slices {
		if pos < s.capacity {
			s.buf[pos] = b
			return nil
		}
		pos -= s.capacity
	}
	return zerr.New(zerr.KindInvalidArgument, "wbuf: put out of range")
}

// Len returns the total number of readable (written) bytes across all
// slices from rIdx..wIdx.
func (w *WBuf) Len() int {
	total := 0
	for i := w.rIdx; i <= w.wIdx && i < len(w.slices); i++ {
		total += w.slices[i].readable()
	}
	return total
}

// Reset rewinds every slice's cursors to zero, without freeing them,
// so the WBuf can be reused for the next message (the FRAME scratch
// buffer pattern in transport/common.Send).
func (w *WBuf) Reset() {
	w.rIdx = 0
	w.wIdx = 0
	for _, s := range w.slices {
		s.rPos = 0
		s.wPos = 0
	}
}

// ToRBuf copies every slice's readable region out into one contiguous
// RBuf, the step that hands a finished WBuf to the link for writing.
func (w *WBuf) ToRBuf() *RBuf {
	out := make([]byte, 0, w.Len())
	for i := w.rIdx; i <= w.wIdx && i < len(w.slices); i++ {
		s := w.slices[i]
		out = append(out, s.buf[s.rPos:s.wPos]...)
	}
	return NewRBuf(out)
}
