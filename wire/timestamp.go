package wire

import (
	"bytes"

	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// SourceIDLen is the fixed width of a Timestamp's source id, per
// spec.md §3 ("64-bit time + 16-byte source id").
const SourceIDLen = 16

// Timestamp is a Hybrid-Logical-Clock-style value: a 64-bit time plus
// the id of the node that stamped it, used to order/deduplicate
// samples and replies under consolidation (spec.md §4.4).
type Timestamp struct {
	Time     uint64
	SourceID [SourceIDLen]byte
}

// Before reports whether t happened strictly before o: compares time
// first, then falls back to a byte-lexicographic source id tie-break
// so two equal-time stamps from different sources still order
// deterministically (needed by "monotonic" consolidation).
func (t Timestamp) Before(o Timestamp) bool {
	if t.Time != o.Time {
		return t.Time < o.Time
	}
	return bytes.Compare(t.SourceID[:], o.SourceID[:]) < 0
}

// EncodeTimestamp writes the 64-bit time as a zint followed by the
// raw 16-byte source id.
func EncodeTimestamp(w *iobuf.WBuf, ts Timestamp) error {
	if err := EncodeZint(w, ts.Time); err != nil {
		return err
	}
	return w.WriteBytes(ts.SourceID[:])
}

// DecodeTimestamp reads a Timestamp written by EncodeTimestamp.
func DecodeTimestamp(r *iobuf.RBuf) (Timestamp, error) {
	t, err := DecodeZint(r)
	if err != nil {
		return Timestamp{}, err
	}
	idBytes, err := r.ReadBytes(SourceIDLen)
	if err != nil {
		return Timestamp{}, zerr.Wrap(zerr.KindNotEnoughBytes, "timestamp: source id", err)
	}
	var ts Timestamp
	ts.Time = t
	copy(ts.SourceID[:], idBytes)
	return ts, nil
}
