package iobuf

// Payload is a z_bytes-style wrapper around application payload bytes.
// Put/Get/reply call sites hand payload around as a Payload rather than
// a bare []byte so a caller can build one out of several
// non-contiguous slices (e.g. a header plus a body produced by two
// separate encodes) and have it flow through Session/wire without an
// eager copy-and-concatenate. Grounded on original_source's z_bytes.c
// slice-iterator shape (z_bytes_get_slice_iterator / z_bytes_slice_iterator_next).
type Payload struct {
	slices [][]byte
	len    int
}

// NewPayload wraps a single slice with no copy.
func NewPayload(b []byte) Payload {
	if len(b) == 0 {
		return Payload{}
	}
	return Payload{slices: [][]byte{b}, len: len(b)}
}

// NewPayloadSlices wraps an ordered sequence of slices with no copy;
// Bytes/iteration present them concatenated in the given order.
func NewPayloadSlices(bs ...[]byte) Payload {
	p := Payload{}
	for _, b := range bs {
		p.append(b)
	}
	return p
}

func (p *Payload) append(b []byte) {
	if len(b) == 0 {
		return
	}
	p.slices = append(p.slices, b)
	p.len += len(b)
}

// Append adds b as one more slice, aliasing it rather than copying.
func (p Payload) Append(b []byte) Payload {
	p.append(b)
	return p
}

// Len returns the total number of bytes across all slices.
func (p Payload) Len() int { return p.len }

// IsEmpty reports whether the payload carries no bytes.
func (p Payload) IsEmpty() bool { return p.len == 0 }

// NumSlices returns how many distinct slices back this payload.
func (p Payload) NumSlices() int { return len(p.slices) }

// Bytes returns the payload as one contiguous slice, copying and
// concatenating only if it is backed by more than one slice.
func (p Payload) Bytes() []byte {
	switch len(p.slices) {
	case 0:
		return nil
	case 1:
		return p.slices[0]
	}
	out := make([]byte, 0, p.len)
	for _, s := range p.slices {
		out = append(out, s...)
	}
	return out
}

// SliceIterator yields each backing slice in order without copying,
// mirroring z_bytes_slice_iterator_t's no-copy walk over a z_bytes'
// underlying fragments.
type SliceIterator struct {
	slices [][]byte
	idx    int
}

// SliceIterator returns an iterator over p's backing slices.
func (p Payload) SliceIterator() *SliceIterator {
	return &SliceIterator{slices: p.slices}
}

// Next reports whether a further slice is available and, if so,
// returns it. The returned slice aliases the payload; callers that
// need to retain it past further Payload mutation should copy it.
func (it *SliceIterator) Next() ([]byte, bool) {
	if it.idx >= len(it.slices) {
		return nil, false
	}
	s := it.slices[it.idx]
	it.idx++
	return s, true
}

// Reader returns an *RBuf over the payload's contiguous form, for
// callers that want to decode out of it with the same cursor API used
// to decode wire messages.
func (p Payload) Reader() *RBuf {
	return NewRBuf(p.Bytes())
}
