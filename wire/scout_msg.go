package wire

import (
	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// Discovery message ids, exchanged over the short-lived UDP socket
// scouting opens (spec.md §4.8), never over an established transport
// session — hence their own MID namespace distinct from MidInit..MidFragment.
const (
	MidScout byte = 0x01
	MidHello byte = 0x02
)

// ScoutMessage solicits HELLO responses from any reachable zenoh
// entity, spec.md §4.8.
type ScoutMessage struct {
	What WhatAmI // the kind of entity being sought
	ZID  []byte  // sender's zid, 0-16 bytes; empty if the scout is anonymous
}

func (m *ScoutMessage) MID() byte { return MidScout }

// EncodeScout writes a SCOUT datagram.
func EncodeScout(w *iobuf.WBuf, m *ScoutMessage) error {
	if err := writeHeader(w, MidScout, 0); err != nil {
		return err
	}
	if err := w.WriteByte(byte(m.What)); err != nil {
		return err
	}
	return EncodeSlice(w, m.ZID)
}

// DecodeScout reads a SCOUT datagram, including its leading header byte.
func DecodeScout(r *iobuf.RBuf) (*ScoutMessage, error) {
	mid, _, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if mid != MidScout {
		return nil, zerr.Newf(zerr.KindMessageDeserialization, "scout: unexpected mid %#x", mid)
	}
	whatB, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "scout: whatami", err)
	}
	zid, err := DecodeSlice(r)
	if err != nil {
		return nil, err
	}
	return &ScoutMessage{What: WhatAmI(whatB), ZID: zid}, nil
}

// HelloMessage is a SCOUT reply advertising the responder's identity
// and reachable locators, spec.md §4.8 ("collected HELLO responses
// feed the locator list").
type HelloMessage struct {
	What     WhatAmI
	ZID      []byte
	Locators []string
}

func (m *HelloMessage) MID() byte { return MidHello }

// EncodeHello writes a HELLO datagram.
func EncodeHello(w *iobuf.WBuf, m *HelloMessage) error {
	if err := writeHeader(w, MidHello, 0); err != nil {
		return err
	}
	if err := w.WriteByte(byte(m.What)); err != nil {
		return err
	}
	if err := EncodeSlice(w, m.ZID); err != nil {
		return err
	}
	if err := EncodeZint(w, uint64(len(m.Locators))); err != nil {
		return err
	}
	for _, l := range m.Locators {
		if err := EncodeSlice(w, []byte(l)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeHello reads a HELLO datagram, including its leading header byte.
func DecodeHello(r *iobuf.RBuf) (*HelloMessage, error) {
	mid, _, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if mid != MidHello {
		return nil, zerr.Newf(zerr.KindMessageDeserialization, "hello: unexpected mid %#x", mid)
	}
	whatB, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "hello: whatami", err)
	}
	zid, err := DecodeSlice(r)
	if err != nil {
		return nil, err
	}
	n, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	locs := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		l, err := DecodeSlice(r)
		if err != nil {
			return nil, err
		}
		locs = append(locs, string(l))
	}
	return &HelloMessage{What: WhatAmI(whatB), ZID: zid, Locators: locs}, nil
}
