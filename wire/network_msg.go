package wire

import (
	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// Declaration body tags, carried inside a DeclareMessage, per spec.md
// §4.2's network-message table and §3's Resource/Subscriber/Queryable
// model.
const (
	declResource   byte = 0x01
	declSubscriber byte = 0x02
	declQueryable  byte = 0x03
	declToken      byte = 0x04
	declUndeclare  byte = 0x1f
)

// DeclareBody is the sum type of everything a DeclareMessage can carry.
// Exactly one of the typed fields is non-nil.
type DeclareBody struct {
	Resource   *ResourceDecl
	Subscriber *SubscriberDecl
	Queryable  *QueryableDecl
	Undeclare  *UndeclareDecl
}

// ResourceDecl binds a numeric id to a key expression so later
// messages can refer to it by WireKeyExpr.ID, per spec.md §3.
type ResourceDecl struct {
	ID  uint64
	Key WireKeyExpr
}

// SubscriberDeclKind distinguishes push vs. pull subscription mode.
// Pull mode is not part of this core's feature set (spec.md Non-goals)
// but the bit is decoded so a peer's declare still round-trips.
type SubscriberDeclKind byte

const (
	SubscriberPush SubscriberDeclKind = 0
	SubscriberPull SubscriberDeclKind = 1
)

// SubscriberDecl announces interest in a key expression, per spec.md §4.1.
type SubscriberDecl struct {
	ID   uint64
	Key  WireKeyExpr
	Kind SubscriberDeclKind
}

// QueryableDecl announces a queryable willing to answer GET requests
// matching Key, per spec.md §4.1.
type QueryableDecl struct {
	ID          uint64
	Key         WireKeyExpr
	Complete    bool
	DistanceLow uint64 // cost hint used to pick amongst matching queryables
}

// UndeclareKind says which earlier declaration is being retracted.
type UndeclareKind byte

const (
	UndeclareResource   UndeclareKind = declResource
	UndeclareSubscriber UndeclareKind = declSubscriber
	UndeclareQueryable  UndeclareKind = declQueryable
)

// UndeclareDecl retracts an earlier ResourceDecl/SubscriberDecl/QueryableDecl.
type UndeclareDecl struct {
	Kind UndeclareKind
	ID   uint64
}

func encodeDeclareBody(w *iobuf.WBuf, b DeclareBody) error {
	switch {
	case b.Resource != nil:
		if err := w.WriteByte(declResource); err != nil {
			return err
		}
		if err := EncodeZint(w, b.Resource.ID); err != nil {
			return err
		}
		return EncodeKeyExpr(w, b.Resource.Key)
	case b.Subscriber != nil:
		if err := w.WriteByte(declSubscriber); err != nil {
			return err
		}
		if err := EncodeZint(w, b.Subscriber.ID); err != nil {
			return err
		}
		if err := EncodeKeyExpr(w, b.Subscriber.Key); err != nil {
			return err
		}
		return w.WriteByte(byte(b.Subscriber.Kind))
	case b.Queryable != nil:
		if err := w.WriteByte(declQueryable); err != nil {
			return err
		}
		if err := EncodeZint(w, b.Queryable.ID); err != nil {
			return err
		}
		if err := EncodeKeyExpr(w, b.Queryable.Key); err != nil {
			return err
		}
		var cb byte
		if b.Queryable.Complete {
			cb = 1
		}
		if err := w.WriteByte(cb); err != nil {
			return err
		}
		return EncodeZint(w, b.Queryable.DistanceLow)
	case b.Undeclare != nil:
		if err := w.WriteByte(declUndeclare); err != nil {
			return err
		}
		if err := w.WriteByte(byte(b.Undeclare.Kind)); err != nil {
			return err
		}
		return EncodeZint(w, b.Undeclare.ID)
	default:
		return zerr.New(zerr.KindInvalidArgument, "declare: empty body")
	}
}

func decodeDeclareBody(r *iobuf.RBuf) (DeclareBody, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return DeclareBody{}, zerr.Wrap(zerr.KindNotEnoughBytes, "declare: tag", err)
	}
	switch tag {
	case declResource:
		id, err := DecodeZint(r)
		if err != nil {
			return DeclareBody{}, err
		}
		key, err := DecodeKeyExpr(r)
		if err != nil {
			return DeclareBody{}, err
		}
		return DeclareBody{Resource: &ResourceDecl{ID: id, Key: key}}, nil
	case declSubscriber:
		id, err := DecodeZint(r)
		if err != nil {
			return DeclareBody{}, err
		}
		key, err := DecodeKeyExpr(r)
		if err != nil {
			return DeclareBody{}, err
		}
		kb, err := r.ReadByte()
		if err != nil {
			return DeclareBody{}, zerr.Wrap(zerr.KindNotEnoughBytes, "declare: sub kind", err)
		}
		return DeclareBody{Subscriber: &SubscriberDecl{ID: id, Key: key, Kind: SubscriberDeclKind(kb)}}, nil
	case declQueryable:
		id, err := DecodeZint(r)
		if err != nil {
			return DeclareBody{}, err
		}
		key, err := DecodeKeyExpr(r)
		if err != nil {
			return DeclareBody{}, err
		}
		cb, err := r.ReadByte()
		if err != nil {
			return DeclareBody{}, zerr.Wrap(zerr.KindNotEnoughBytes, "declare: queryable complete", err)
		}
		dist, err := DecodeZint(r)
		if err != nil {
			return DeclareBody{}, err
		}
		return DeclareBody{Queryable: &QueryableDecl{ID: id, Key: key, Complete: cb != 0, DistanceLow: dist}}, nil
	case declUndeclare:
		kb, err := r.ReadByte()
		if err != nil {
			return DeclareBody{}, zerr.Wrap(zerr.KindNotEnoughBytes, "undeclare: kind", err)
		}
		id, err := DecodeZint(r)
		if err != nil {
			return DeclareBody{}, err
		}
		return DeclareBody{Undeclare: &UndeclareDecl{Kind: UndeclareKind(kb), ID: id}}, nil
	default:
		return DeclareBody{}, zerr.Newf(zerr.KindMessageDeserialization, "declare: unknown tag %#x", tag)
	}
}

// NetworkMessage is any of the NMID_* message kinds carried inside a
// transport FRAME/FRAGMENT payload, per spec.md §4.2.
type NetworkMessage interface {
	NMID() byte
}

// DeclareMessage carries one DeclareBody.
type DeclareMessage struct {
	Body DeclareBody
}

func (m *DeclareMessage) NMID() byte { return NMidDeclare }

// PushMessage is a publication: a Put or a Delete on Key, per spec.md §4.1.
// Attachment is a supplemental out-of-band byte string riding alongside
// Payload, mirrored from zenoh-pico's queryable/publisher attachment
// support (original_source z_queryable_attachment.c); nil when absent.
type PushMessage struct {
	Key        WireKeyExpr
	IsDelete   bool
	Encoding   Encoding
	Ts         *Timestamp
	Payload    []byte
	Attachment []byte
}

func (m *PushMessage) NMID() byte { return NMidPush }

const (
	pushFlagDelete     = 0x01
	pushFlagTs         = 0x02
	pushFlagAttachment = 0x04
)

func encodePushBody(w *iobuf.WBuf, m *PushMessage) error {
	var f byte
	if m.IsDelete {
		f |= pushFlagDelete
	}
	if m.Ts != nil {
		f |= pushFlagTs
	}
	if m.Attachment != nil {
		f |= pushFlagAttachment
	}
	if err := w.WriteByte(f); err != nil {
		return err
	}
	if err := EncodeKeyExpr(w, m.Key); err != nil {
		return err
	}
	if m.Ts != nil {
		if err := EncodeTimestamp(w, *m.Ts); err != nil {
			return err
		}
	}
	if m.Attachment != nil {
		if err := EncodeSlice(w, m.Attachment); err != nil {
			return err
		}
	}
	if !m.IsDelete {
		if err := EncodeEncoding(w, m.Encoding); err != nil {
			return err
		}
		if err := EncodeSlice(w, m.Payload); err != nil {
			return err
		}
	}
	return nil
}

func decodePushBody(r *iobuf.RBuf) (*PushMessage, error) {
	f, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "push: flags", err)
	}
	m := &PushMessage{IsDelete: f&pushFlagDelete != 0}
	key, err := DecodeKeyExpr(r)
	if err != nil {
		return nil, err
	}
	m.Key = key
	if f&pushFlagTs != 0 {
		ts, err := DecodeTimestamp(r)
		if err != nil {
			return nil, err
		}
		m.Ts = &ts
	}
	if f&pushFlagAttachment != 0 {
		att, err := DecodeSlice(r)
		if err != nil {
			return nil, err
		}
		m.Attachment = att
	}
	if !m.IsDelete {
		enc, err := DecodeEncoding(r)
		if err != nil {
			return nil, err
		}
		m.Encoding = enc
		payload, err := DecodeSlice(r)
		if err != nil {
			return nil, err
		}
		m.Payload = payload
	}
	return m, nil
}

// QueryTarget selects how many matching queryables a request should
// reach, per spec.md §4.4.
type QueryTarget byte

const (
	TargetBestMatching QueryTarget = 0
	TargetAll          QueryTarget = 1
	TargetAllComplete  QueryTarget = 2
)

// RequestMessage is a GET query, per spec.md §4.4.
type RequestMessage struct {
	RequestID  uint64
	Key        WireKeyExpr
	Selector   string // parameters portion of the selector
	Target     QueryTarget
	Encoding   Encoding
	Payload    []byte // nil when the query carries no value
	Attachment []byte
}

func (m *RequestMessage) NMID() byte { return NMidRequest }

const (
	reqFlagPayload    = 0x01
	reqFlagAttachment = 0x02
)

func encodeRequestBody(w *iobuf.WBuf, m *RequestMessage) error {
	if err := EncodeZint(w, m.RequestID); err != nil {
		return err
	}
	if err := EncodeKeyExpr(w, m.Key); err != nil {
		return err
	}
	if err := EncodeString(w, m.Selector); err != nil {
		return err
	}
	if err := w.WriteByte(byte(m.Target)); err != nil {
		return err
	}
	var f byte
	if m.Payload != nil {
		f |= reqFlagPayload
	}
	if m.Attachment != nil {
		f |= reqFlagAttachment
	}
	if err := w.WriteByte(f); err != nil {
		return err
	}
	if m.Attachment != nil {
		if err := EncodeSlice(w, m.Attachment); err != nil {
			return err
		}
	}
	if m.Payload != nil {
		if err := EncodeEncoding(w, m.Encoding); err != nil {
			return err
		}
		if err := EncodeSlice(w, m.Payload); err != nil {
			return err
		}
	}
	return nil
}

func decodeRequestBody(r *iobuf.RBuf) (*RequestMessage, error) {
	m := &RequestMessage{}
	id, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	m.RequestID = id
	key, err := DecodeKeyExpr(r)
	if err != nil {
		return nil, err
	}
	m.Key = key
	sel, err := DecodeString(r)
	if err != nil {
		return nil, err
	}
	m.Selector = sel
	tb, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "request: target", err)
	}
	m.Target = QueryTarget(tb)
	fb, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "request: flags", err)
	}
	if fb&reqFlagAttachment != 0 {
		att, err := DecodeSlice(r)
		if err != nil {
			return nil, err
		}
		m.Attachment = att
	}
	if fb&reqFlagPayload != 0 {
		enc, err := DecodeEncoding(r)
		if err != nil {
			return nil, err
		}
		m.Encoding = enc
		payload, err := DecodeSlice(r)
		if err != nil {
			return nil, err
		}
		m.Payload = payload
	}
	return m, nil
}

// ResponseMessage is one reply to a RequestMessage, per spec.md §4.4.
// A single request may yield zero or more of these, always followed by
// exactly one ResponseFinalMessage. Attachment mirrors PushMessage's.
type ResponseMessage struct {
	RequestID  uint64
	Key        WireKeyExpr
	IsErr      bool
	Encoding   Encoding
	Ts         *Timestamp
	Payload    []byte
	Attachment []byte
}

func (m *ResponseMessage) NMID() byte { return NMidResponse }

const (
	respFlagErr        = 0x01
	respFlagTs         = 0x02
	respFlagAttachment = 0x04
)

func encodeResponseBody(w *iobuf.WBuf, m *ResponseMessage) error {
	if err := EncodeZint(w, m.RequestID); err != nil {
		return err
	}
	if err := EncodeKeyExpr(w, m.Key); err != nil {
		return err
	}
	var f byte
	if m.IsErr {
		f |= respFlagErr
	}
	if m.Ts != nil {
		f |= respFlagTs
	}
	if m.Attachment != nil {
		f |= respFlagAttachment
	}
	if err := w.WriteByte(f); err != nil {
		return err
	}
	if m.Ts != nil {
		if err := EncodeTimestamp(w, *m.Ts); err != nil {
			return err
		}
	}
	if m.Attachment != nil {
		if err := EncodeSlice(w, m.Attachment); err != nil {
			return err
		}
	}
	if err := EncodeEncoding(w, m.Encoding); err != nil {
		return err
	}
	return EncodeSlice(w, m.Payload)
}

func decodeResponseBody(r *iobuf.RBuf) (*ResponseMessage, error) {
	m := &ResponseMessage{}
	id, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	m.RequestID = id
	key, err := DecodeKeyExpr(r)
	if err != nil {
		return nil, err
	}
	m.Key = key
	f, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "response: flags", err)
	}
	m.IsErr = f&respFlagErr != 0
	if f&respFlagTs != 0 {
		ts, err := DecodeTimestamp(r)
		if err != nil {
			return nil, err
		}
		m.Ts = &ts
	}
	if f&respFlagAttachment != 0 {
		att, err := DecodeSlice(r)
		if err != nil {
			return nil, err
		}
		m.Attachment = att
	}
	enc, err := DecodeEncoding(r)
	if err != nil {
		return nil, err
	}
	m.Encoding = enc
	payload, err := DecodeSlice(r)
	if err != nil {
		return nil, err
	}
	m.Payload = payload
	return m, nil
}

// ResponseFinalMessage closes out a request, letting the querier know
// no further ResponseMessages will arrive (spec.md §4.4).
type ResponseFinalMessage struct {
	RequestID uint64
}

func (m *ResponseFinalMessage) NMID() byte { return NMidResponseFinal }

func encodeResponseFinalBody(w *iobuf.WBuf, m *ResponseFinalMessage) error {
	return EncodeZint(w, m.RequestID)
}

func decodeResponseFinalBody(r *iobuf.RBuf) (*ResponseFinalMessage, error) {
	id, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	return &ResponseFinalMessage{RequestID: id}, nil
}

// UndeclareMessage is the standalone (non-Declare-wrapped) network
// message form some zenoh-pico versions emit for a bare undeclare;
// kept distinct from DeclareBody.Undeclare for wire compatibility,
// per original_source's msgcodec.h NMID table (superseded to the
// zenoh-pico tree's Declare-wrapped form as primary encode path, see
// encodeDeclareBody, but still decodable standalone).
type UndeclareMessage struct {
	Kind UndeclareKind
	ID   uint64
}

func (m *UndeclareMessage) NMID() byte { return NMidUndeclare }

func encodeUndeclareBody(w *iobuf.WBuf, m *UndeclareMessage) error {
	if err := w.WriteByte(byte(m.Kind)); err != nil {
		return err
	}
	return EncodeZint(w, m.ID)
}

func decodeUndeclareBody(r *iobuf.RBuf) (*UndeclareMessage, error) {
	kb, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "undeclare: kind", err)
	}
	id, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	return &UndeclareMessage{Kind: UndeclareKind(kb), ID: id}, nil
}

// InterestFlags mark which declaration kinds an InterestMessage is
// asking to be informed about, per spec.md §4.1's "initial state sync"
// behavior (a subscriber declared after a publisher starts still sees
// future samples; interest lets a late joiner request a replay of
// current declarations).
type InterestFlags byte

const (
	InterestKeyExprs    InterestFlags = 0x01
	InterestSubscribers InterestFlags = 0x02
	InterestQueryables  InterestFlags = 0x04
	InterestTokens      InterestFlags = 0x08
	InterestCurrent     InterestFlags = 0x10 // snapshot now
	InterestFuture      InterestFlags = 0x20 // keep pushing updates
)

// InterestMessage requests the current or future set of declarations
// matching Key (nil Key means "all"), per spec.md §4.1.
type InterestMessage struct {
	ID     uint64
	Flags  InterestFlags
	Key    *WireKeyExpr
	Cancel bool // cancels a previously-issued InterestMessage.ID
}

func (m *InterestMessage) NMID() byte { return NMidInterest }

const interestFlagCancel = 0x40

func encodeInterestBody(w *iobuf.WBuf, m *InterestMessage) error {
	if err := EncodeZint(w, m.ID); err != nil {
		return err
	}
	f := byte(m.Flags)
	if m.Cancel {
		f |= interestFlagCancel
	}
	if err := w.WriteByte(f); err != nil {
		return err
	}
	if m.Key != nil {
		if err := w.WriteByte(1); err != nil {
			return err
		}
		return EncodeKeyExpr(w, *m.Key)
	}
	return w.WriteByte(0)
}

func decodeInterestBody(r *iobuf.RBuf) (*InterestMessage, error) {
	m := &InterestMessage{}
	id, err := DecodeZint(r)
	if err != nil {
		return nil, err
	}
	m.ID = id
	fb, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "interest: flags", err)
	}
	m.Cancel = fb&interestFlagCancel != 0
	m.Flags = InterestFlags(fb &^ interestFlagCancel)
	hasKey, err := r.ReadByte()
	if err != nil {
		return nil, zerr.Wrap(zerr.KindNotEnoughBytes, "interest: has-key", err)
	}
	if hasKey != 0 {
		key, err := DecodeKeyExpr(r)
		if err != nil {
			return nil, err
		}
		m.Key = &key
	}
	return m, nil
}

// EncodeNetworkMessage writes a full network message (header + body)
// into an already-open transport FRAME/FRAGMENT payload buffer.
func EncodeNetworkMessage(w *iobuf.WBuf, m NetworkMessage) error {
	if err := writeHeader(w, m.NMID(), 0); err != nil {
		return err
	}
	switch v := m.(type) {
	case *DeclareMessage:
		return encodeDeclareBody(w, v.Body)
	case *UndeclareMessage:
		return encodeUndeclareBody(w, v)
	case *PushMessage:
		return encodePushBody(w, v)
	case *RequestMessage:
		return encodeRequestBody(w, v)
	case *ResponseMessage:
		return encodeResponseBody(w, v)
	case *ResponseFinalMessage:
		return encodeResponseFinalBody(w, v)
	case *InterestMessage:
		return encodeInterestBody(w, v)
	default:
		return zerr.New(zerr.KindInvalidArgument, "network: unknown message type")
	}
}

// DecodeNetworkMessage reads one network message from r. Callers
// decoding a FRAME/FRAGMENT payload call this repeatedly until r is
// exhausted, since several network messages may share one frame.
func DecodeNetworkMessage(r *iobuf.RBuf) (NetworkMessage, error) {
	mid, _, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	switch mid {
	case NMidDeclare:
		body, err := decodeDeclareBody(r)
		if err != nil {
			return nil, err
		}
		return &DeclareMessage{Body: body}, nil
	case NMidUndeclare:
		return decodeUndeclareBody(r)
	case NMidPush:
		return decodePushBody(r)
	case NMidRequest:
		return decodeRequestBody(r)
	case NMidResponse:
		return decodeResponseBody(r)
	case NMidResponseFinal:
		return decodeResponseFinalBody(r)
	case NMidInterest:
		return decodeInterestBody(r)
	default:
		return nil, zerr.Newf(zerr.KindMessageDeserialization, "unknown network mid %#x", mid)
	}
}
