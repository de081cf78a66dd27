// Package common holds the logic shared by transport/unicast and
// transport/multicast: sequence-number bookkeeping and the
// fragmentation/reassembly discipline of spec.md §4.7.
package common

import (
	"github.com/zenohpico/zenohpico-go/wire"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// FragMaxSize bounds a reassembled message, per DESIGN.md's Open
// Questions decision: a fixed cap, with the scratch buffer allowed to
// grow up to that cap rather than being preallocated at full size.
const FragMaxSize = 16 * wire.MaxBatchSize

// Fragment splits payload into a sequence of FragmentMessages no
// larger than chunkSize bytes each, mirroring the teacher's
// fragmentMessage chunking loop in proxy/fragmentation.go (ceil
// division, a differently-sized final chunk) generalized from
// fixed-size mixnet blocks to the link's negotiated batch size.
func Fragment(payload []byte, chunkSize int, reliable bool, startSN uint64) []*wire.FragmentMessage {
	if chunkSize <= 0 {
		chunkSize = wire.MaxBatchSize
	}
	if len(payload) == 0 {
		return []*wire.FragmentMessage{{Reliable: reliable, SN: startSN, More: false, Payload: nil}}
	}
	total := (len(payload) + chunkSize - 1) / chunkSize
	out := make([]*wire.FragmentMessage, 0, total)
	sn := startSN
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, &wire.FragmentMessage{
			Reliable: reliable,
			SN:       sn,
			More:     i != total-1,
			Payload:  payload[start:end],
		})
		sn++
	}
	return out
}

// Reassembler accumulates FragmentMessages for one reliability channel
// of one link until a fragment with More == false completes the
// message, per spec.md §4.7. Unlike the teacher's mixnet block
// reassembly (proxy/fragmentation.go's dedup-by-BlockID-then-sort,
// needed because SURB-routed blocks can arrive out of order and
// duplicated), a transport link delivers FRAGMENT messages in send
// order, so reassembly here is a straight append with a capacity
// bound instead of a dedup-and-sort pass.
type Reassembler struct {
	buf      []byte
	poisoned bool // true while discarding the remainder of an oversized message
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Push appends one fragment's payload. When it returns a non-nil
// slice, that slice is the complete reassembled message and the
// Reassembler resets itself for the next one.
//
// Once a message overflows FragMaxSize, the Reassembler is poisoned:
// per spec.md §4.7 it keeps consuming and discarding that message's
// remaining fragments, without re-triggering the overflow error on
// every one of them, until the message's own terminal (More == false)
// fragment arrives — at that point the whole message is dropped and
// the Reassembler resets for the next one, rather than mistaking an
// in-flight oversized message's later fragments for the start of a
// new message, or returning its truncated tail as if it were complete.
func (r *Reassembler) Push(frag *wire.FragmentMessage) ([]byte, error) {
	if r.poisoned {
		if !frag.More {
			r.poisoned = false
		}
		return nil, nil
	}
	if len(r.buf)+len(frag.Payload) > FragMaxSize {
		r.buf = nil
		r.poisoned = frag.More
		return nil, zerr.Newf(zerr.KindBufferNoSpace, "fragment: reassembled message exceeds %d bytes", FragMaxSize)
	}
	if r.buf == nil {
		r.buf = make([]byte, 0, min(len(frag.Payload)*2, FragMaxSize))
	}
	r.buf = append(r.buf, frag.Payload...)
	if frag.More {
		return nil, nil
	}
	out := r.buf
	r.buf = nil
	return out, nil
}

// Reset discards any partially-assembled message and clears poisoned
// state, used when a link drops or a CLOSE arrives mid-fragment.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.poisoned = false
}
