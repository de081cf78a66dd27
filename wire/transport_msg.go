package wire

import (
	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// WhatAmI identifies a node's role during the open handshake. Only
// Client and Peer are meaningful for this core (spec.md §1 Non-goals:
// no router role), Router is kept so a handshake against a real
// zenoh router still decodes.
type WhatAmI byte

const (
	WhatAmIRouter WhatAmI = 0
	WhatAmIPeer   WhatAmI = 1
	WhatAmIClient WhatAmI = 2
)

// TransportMessage is any of the MID_* message kinds of spec.md §4.2's
// framing table.
type TransportMessage interface {
	MID() byte
	encodeBody(w *iobuf.WBuf, flags byte) error
}

// InitMessage is the capability-advertisement handshake step (INIT
// syn/ack), spec.md §4.5 step 1-2.
type InitMessage struct {
	Ack          bool
	Version      uint8
	WhatAmI      WhatAmI
	ZID          []byte // 1-16 bytes
	SnResolution uint64
	BatchSize    uint16
	QoS          bool
	Cookie       []byte // present only when Ack
}

func (m *InitMessage) MID() byte { return MidInit }

func (m *InitMessage) encodeBody(w *iobuf.WBuf, flags byte) error {
	if len(m.ZID) == 0 || len(m.ZID) > 16 {
		return zerr.New(zerr.KindInvalidArgument, "init: zid must be 1-16 bytes")
	}
	if err := w.WriteByte(m.Version); err != nil {
		return err
	}
	if err := w.WriteByte(byte(m.WhatAmI)); err != nil {
		return err
	}
	if err := w.WriteByte(byte(len(m.ZID))); err != nil {
		return err
	}
	if err := w.WriteBytes(m.ZID); err != nil {
		return err
	}
	if err := EncodeZint(w, m.SnResolution); err != nil {
		return err
	}
	if err := EncodeUint16(w, m.BatchSize); err != nil {
		return err
	}
	if m.Ack {
		if err := EncodeSlice(w, m.Cookie); err != nil {
			return err
		}
	}
	return nil
}

// DecodeInitBody decodes the body of an INIT message given the flags
// read from its header.
func DecodeInitBody(r *iobuf.RBuf, flags byte) (*InitMessage, error) {
	m := &InitMessage{Ack: flags&flagA != 0, QoS: flags&flagS != 0}
	ver, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "init: version", err)
	}
	m.Version = ver
	waiB, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "init: whatami", err)
	}
	m.WhatAmI = WhatAmI(waiB)
	zidLen, err := r.ReadByte()
	if err != nil || zidLen == 0 || zidLen > 16 {
		return nil, zerr.New(zerr.KindMessageDeserialization, "init: bad zid length")
	}
	zid, err := r.ReadBytes(int(zidLen))
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "init: zid", err)
	}
	m.ZID = zid
	snRes, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	m.SnResolution = snRes
	batch, err := DecodeUint16(r)
	if err != nil {
		return nil, err
	}
	m.BatchSize = batch
	if m.Ack {
		cookie, err := DecodeSlice(r)
		if err != nil {
			return nil, err
		}
		m.Cookie = cookie
	}
	return m, nil
}

// OpenMessage establishes the session after INIT (OPEN syn/ack),
// spec.md §4.5 step 3-4.
type OpenMessage struct {
	Ack       bool
	LeaseMs   uint64
	InitialSN uint64
	Cookie    []byte // echoed back on syn only
}

func (m *OpenMessage) MID() byte { return MidOpen }

func (m *OpenMessage) encodeBody(w *iobuf.WBuf, flags byte) error {
	if err := EncodeZint(w, m.LeaseMs); err != nil {
		return err
	}
	if err := EncodeZint(w, m.InitialSN); err != nil {
		return err
	}
	if !m.Ack {
		if err := EncodeSlice(w, m.Cookie); err != nil {
			return err
		}
	}
	return nil
}

// DecodeOpenBody decodes the body of an OPEN message.
func DecodeOpenBody(r *iobuf.RBuf, flags byte) (*OpenMessage, error) {
	m := &OpenMessage{Ack: flags&flagA != 0}
	lease, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	m.LeaseMs = lease
	sn, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	m.InitialSN = sn
	if !m.Ack {
		cookie, err := DecodeSlice(r)
		if err != nil {
			return nil, err
		}
		m.Cookie = cookie
	}
	return m, nil
}

// JoinMessage announces or refreshes multicast presence, spec.md §4.6.
type JoinMessage struct {
	WhatAmI             WhatAmI
	ZID                 []byte
	SnResolution        uint64
	BatchSize           uint16
	LeaseMs             uint64
	InitialSNReliable   uint64
	InitialSNBestEffort uint64
	QoS                 bool
}

func (m *JoinMessage) MID() byte { return MidJoin }

func (m *JoinMessage) encodeBody(w *iobuf.WBuf, flags byte) error {
	if len(m.ZID) == 0 || len(m.ZID) > 16 {
		return zerr.New(zerr.KindInvalidArgument, "join: zid must be 1-16 bytes")
	}
	if err := w.WriteByte(byte(m.WhatAmI)); err != nil {
		return err
	}
	if err := w.WriteByte(byte(len(m.ZID))); err != nil {
		return err
	}
	if err := w.WriteBytes(m.ZID); err != nil {
		return err
	}
	if err := EncodeZint(w, m.SnResolution); err != nil {
		return err
	}
	if err := EncodeUint16(w, m.BatchSize); err != nil {
		return err
	}
	if err := EncodeZint(w, m.LeaseMs); err != nil {
		return err
	}
	if err := EncodeZint(w, m.InitialSNReliable); err != nil {
		return err
	}
	return EncodeZint(w, m.InitialSNBestEffort)
}

// DecodeJoinBody decodes the body of a JOIN message.
func DecodeJoinBody(r *iobuf.RBuf, flags byte) (*JoinMessage, error) {
	m := &JoinMessage{QoS: flags&flagS != 0}
	waiB, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "join: whatami", err)
	}
	m.WhatAmI = WhatAmI(waiB)
	zidLen, err := r.ReadByte()
	if err != nil || zidLen == 0 || zidLen > 16 {
		return nil, zerr.New(zerr.KindMessageDeserialization, "join: bad zid length")
	}
	zid, err := r.ReadBytes(int(zidLen))
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "join: zid", err)
	}
	m.ZID = zid
	if m.SnResolution, err = DecodeZint(r); err != nil {
		return nil, err
	}
	if m.BatchSize, err = DecodeUint16(r); err != nil {
		return nil, err
	}
	if m.LeaseMs, err = DecodeZint(r); err != nil {
		return nil, err
	}
	if m.InitialSNReliable, err = DecodeZint(r); err != nil {
		return nil, err
	}
	if m.InitialSNBestEffort, err = DecodeZint(r); err != nil {
		return nil, err
	}
	return m, nil
}

// CloseReason enumerates why a CLOSE was sent.
type CloseReason byte

const (
	CloseReasonGeneric    CloseReason = 0
	CloseReasonExpired    CloseReason = 1
	CloseReasonInvalid    CloseReason = 2
	CloseReasonMaxSessions CloseReason = 3
)

// CloseMessage tears down a session or a single link, spec.md §4.2.
type CloseMessage struct {
	Reason   CloseReason
	LinkOnly bool
}

func (m *CloseMessage) MID() byte { return MidClose }

func (m *CloseMessage) encodeBody(w *iobuf.WBuf, flags byte) error {
	return w.WriteByte(byte(m.Reason))
}

// DecodeCloseBody decodes the body of a CLOSE message.
func DecodeCloseBody(r *iobuf.RBuf, flags byte) (*CloseMessage, error) {
	reason, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "close: reason", err)
	}
	return &CloseMessage{Reason: CloseReason(reason), LinkOnly: flags&flagZ != 0}, nil
}

// KeepAliveMessage carries no payload; its mere receipt refreshes
// liveness (spec.md §4.5 lease task).
type KeepAliveMessage struct{}

func (m *KeepAliveMessage) MID() byte                              { return MidKeepAlive }
func (m *KeepAliveMessage) encodeBody(w *iobuf.WBuf, flags byte) error { return nil }

// DecodeKeepAliveBody decodes the (empty) body of a KEEP_ALIVE message.
func DecodeKeepAliveBody(r *iobuf.RBuf, flags byte) (*KeepAliveMessage, error) {
	return &KeepAliveMessage{}, nil
}

// FrameMessage carries one or more already-encoded network messages
// under a single reliability-scoped sequence number, spec.md §4.2/§4.5.
type FrameMessage struct {
	Reliable bool
	SN       uint64
	Payload  []byte // concatenated network message encodings
}

func (m *FrameMessage) MID() byte { return MidFrame }

func (m *FrameMessage) encodeBody(w *iobuf.WBuf, flags byte) error {
	if err := EncodeZint(w, m.SN); err != nil {
		return err
	}
	return w.WriteBytes(m.Payload)
}

// DecodeFrameBody decodes a FRAME body given the already-known payload
// length (the caller, stream- or datagram-framed, knows the total
// message length; the remainder of r after the SN is the payload).
func DecodeFrameBody(r *iobuf.RBuf, flags byte) (*FrameMessage, error) {
	m := &FrameMessage{Reliable: flags&flagR != 0}
	sn, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	m.SN = sn
	m.Payload = r.Bytes()
	_, _ = r.ReadBytes(len(m.Payload))
	return m, nil
}

// FragmentMessage is one chunk of a serialized network message too
// large to fit in a single FRAME, spec.md §4.2/§4.7.
type FragmentMessage struct {
	Reliable bool
	SN       uint64
	More     bool
	Payload  []byte
}

func (m *FragmentMessage) MID() byte { return MidFragment }

func (m *FragmentMessage) encodeBody(w *iobuf.WBuf, flags byte) error {
	if err := EncodeZint(w, m.SN); err != nil {
		return err
	}
	return w.WriteBytes(m.Payload)
}

// DecodeFragmentBody decodes a FRAGMENT body; like FRAME, the payload
// is whatever remains of r.
func DecodeFragmentBody(r *iobuf.RBuf, flags byte) (*FragmentMessage, error) {
	m := &FragmentMessage{Reliable: flags&flagR != 0, More: flags&flagM != 0}
	sn, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	m.SN = sn
	m.Payload = r.Bytes()
	_, _ = r.ReadBytes(len(m.Payload))
	return m, nil
}

// transportFlags computes the header flag bits for a TransportMessage
// immediately before encoding; kept centralized so EncodeTransportMessage
// is the single place that knows each MID's flag layout.
func transportFlags(m TransportMessage) byte {
	var f byte
	switch v := m.(type) {
	case *InitMessage:
		if v.Ack {
			f |= flagA
		}
		if v.QoS {
			f |= flagS
		}
	case *OpenMessage:
		if v.Ack {
			f |= flagA
		}
	case *JoinMessage:
		if v.QoS {
			f |= flagS
		}
	case *CloseMessage:
		if v.LinkOnly {
			f |= flagZ
		}
	case *FrameMessage:
		if v.Reliable {
			f |= flagR
		}
	case *FragmentMessage:
		if v.Reliable {
			f |= flagR
		}
		if v.More {
			f |= flagM
		}
	}
	return f
}

// EncodeTransportMessage writes a full transport message (header + body).
func EncodeTransportMessage(w *iobuf.WBuf, m TransportMessage) error {
	if err := writeHeader(w, m.MID(), transportFlags(m)); err != nil {
		return err
	}
	return m.encodeBody(w, transportFlags(m))
}

// DecodeTransportMessage reads a header byte and dispatches to the
// matching body decoder.
func DecodeTransportMessage(r *iobuf.RBuf) (TransportMessage, error) {
	mid, flags, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	switch mid {
	case MidInit:
		return DecodeInitBody(r, flags)
	case MidOpen:
		return DecodeOpenBody(r, flags)
	case MidJoin:
		return DecodeJoinBody(r, flags)
	case MidClose:
		return DecodeCloseBody(r, flags)
	case MidKeepAlive:
		return DecodeKeepAliveBody(r, flags)
	case MidFrame:
		return DecodeFrameBody(r, flags)
	case MidFragment:
		return DecodeFragmentBody(r, flags)
	default:
		return nil, zerr.Newf(zerr.KindMessageDeserialization, "unknown transport mid %#x", mid)
	}
}
