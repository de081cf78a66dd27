package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zenohpico/zenohpico-go/iobuf"
)

func TestZintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 16383, 16384, 1 << 20, 1<<63 - 1, ^uint64(0)}
	for _, v := range cases {
		w := iobuf.NewWBuf(16, true)
		require.NoError(t, EncodeZint(w, v))
		require.Equal(t, ZintLen(v), w.Len())
		got, err := DecodeZint(w.ToRBuf())
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestSliceAndStringRoundTrip(t *testing.T) {
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeSlice(w, []byte("hello")))
	require.NoError(t, EncodeString(w, "zenoh"))
	r := w.ToRBuf()
	bs, err := DecodeSlice(r)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), bs)
	s, err := DecodeString(r)
	require.NoError(t, err)
	require.Equal(t, "zenoh", s)
}

func TestEncodingRoundTrip(t *testing.T) {
	w := iobuf.NewWBuf(64, true)
	e := Encoding{ID: 42, Schema: []byte("json")}
	require.NoError(t, EncodeEncoding(w, e))
	got, err := DecodeEncoding(w.ToRBuf())
	require.NoError(t, err)
	require.Equal(t, e, got)

	w2 := iobuf.NewWBuf(64, true)
	e2 := Encoding{ID: 7}
	require.NoError(t, EncodeEncoding(w2, e2))
	got2, err := DecodeEncoding(w2.ToRBuf())
	require.NoError(t, err)
	require.False(t, got2.HasSchema())
	require.Equal(t, uint16(7), got2.ID)
}

func TestTimestampOrdering(t *testing.T) {
	a := Timestamp{Time: 10, SourceID: [16]byte{1}}
	b := Timestamp{Time: 10, SourceID: [16]byte{2}}
	c := Timestamp{Time: 20, SourceID: [16]byte{0}}
	require.True(t, a.Before(b))
	require.False(t, b.Before(a))
	require.True(t, a.Before(c))

	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeTimestamp(w, a))
	got, err := DecodeTimestamp(w.ToRBuf())
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestKeyExprRoundTripWithSuffix(t *testing.T) {
	k := WireKeyExpr{ID: 5, Suffix: "a/b/c", Mapping: MappingRemotePeer, PeerID: 99}
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeKeyExpr(w, k))
	got, err := DecodeKeyExpr(w.ToRBuf())
	require.NoError(t, err)
	require.Equal(t, k, got)
}

func TestKeyExprRoundTripIDOnly(t *testing.T) {
	k := WireKeyExpr{ID: 5, Mapping: MappingLocal}
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeKeyExpr(w, k))
	got, err := DecodeKeyExpr(w.ToRBuf())
	require.NoError(t, err)
	require.Equal(t, k, got)
	require.False(t, got.HasSuffix())
}

func TestHeaderPacking(t *testing.T) {
	h := EncodeHeader(MidFrame, flagR)
	mid, flags := DecodeHeader(h)
	require.Equal(t, MidFrame, mid)
	require.Equal(t, flagR, flags)
}

func TestInitMessageRoundTrip(t *testing.T) {
	msg := &InitMessage{
		Ack:          false,
		Version:      9,
		WhatAmI:      WhatAmIClient,
		ZID:          []byte{1, 2, 3, 4},
		SnResolution: 1 << 28,
		BatchSize:    65535,
		QoS:          true,
	}
	w := iobuf.NewWBuf(128, true)
	require.NoError(t, EncodeTransportMessage(w, msg))
	decoded, err := DecodeTransportMessage(w.ToRBuf())
	require.NoError(t, err)
	got, ok := decoded.(*InitMessage)
	require.True(t, ok)
	require.Equal(t, msg, got)
}

func TestInitMessageAckWithCookie(t *testing.T) {
	msg := &InitMessage{
		Ack:          true,
		Version:      9,
		WhatAmI:      WhatAmIPeer,
		ZID:          []byte{9, 9},
		SnResolution: 256,
		BatchSize:    2048,
		Cookie:       []byte("opaque-cookie"),
	}
	w := iobuf.NewWBuf(128, true)
	require.NoError(t, EncodeTransportMessage(w, msg))
	decoded, err := DecodeTransportMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*InitMessage)
	require.Equal(t, msg.Cookie, got.Cookie)
	require.True(t, got.Ack)
}

func TestOpenMessageRoundTrip(t *testing.T) {
	msg := &OpenMessage{LeaseMs: 10000, InitialSN: 0, Cookie: []byte("c")}
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeTransportMessage(w, msg))
	decoded, err := DecodeTransportMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*OpenMessage)
	require.Equal(t, msg.LeaseMs, got.LeaseMs)
	require.Equal(t, msg.Cookie, got.Cookie)
	require.False(t, got.Ack)
}

func TestJoinMessageRoundTrip(t *testing.T) {
	msg := &JoinMessage{
		WhatAmI:             WhatAmIPeer,
		ZID:                 []byte{7, 7, 7},
		SnResolution:        1 << 28,
		BatchSize:           1500,
		LeaseMs:             5000,
		InitialSNReliable:   3,
		InitialSNBestEffort: 4,
		QoS:                 true,
	}
	w := iobuf.NewWBuf(128, true)
	require.NoError(t, EncodeTransportMessage(w, msg))
	decoded, err := DecodeTransportMessage(w.ToRBuf())
	require.NoError(t, err)
	require.Equal(t, msg, decoded.(*JoinMessage))
}

func TestCloseMessageRoundTrip(t *testing.T) {
	msg := &CloseMessage{Reason: CloseReasonExpired, LinkOnly: true}
	w := iobuf.NewWBuf(16, true)
	require.NoError(t, EncodeTransportMessage(w, msg))
	decoded, err := DecodeTransportMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*CloseMessage)
	require.Equal(t, CloseReasonExpired, got.Reason)
	require.True(t, got.LinkOnly)
}

func TestFrameMessageRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	msg := &FrameMessage{Reliable: true, SN: 42, Payload: payload}
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeTransportMessage(w, msg))
	decoded, err := DecodeTransportMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*FrameMessage)
	require.True(t, got.Reliable)
	require.Equal(t, uint64(42), got.SN)
	require.Equal(t, payload, got.Payload)
}

func TestFragmentMessageMoreFlag(t *testing.T) {
	msg := &FragmentMessage{Reliable: false, SN: 1, More: true, Payload: []byte{0xaa, 0xbb}}
	w := iobuf.NewWBuf(32, true)
	require.NoError(t, EncodeTransportMessage(w, msg))
	decoded, err := DecodeTransportMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*FragmentMessage)
	require.True(t, got.More)
	require.False(t, got.Reliable)
}

func TestDeclareResourceRoundTrip(t *testing.T) {
	msg := &DeclareMessage{Body: DeclareBody{Resource: &ResourceDecl{
		ID:  3,
		Key: WireKeyExpr{Suffix: "demo/example/**", Mapping: MappingLocal},
	}}}
	w := iobuf.NewWBuf(128, true)
	require.NoError(t, EncodeNetworkMessage(w, msg))
	decoded, err := DecodeNetworkMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*DeclareMessage)
	require.NotNil(t, got.Body.Resource)
	require.Equal(t, msg.Body.Resource.ID, got.Body.Resource.ID)
	require.Equal(t, msg.Body.Resource.Key.Suffix, got.Body.Resource.Key.Suffix)
}

func TestDeclareSubscriberRoundTrip(t *testing.T) {
	msg := &DeclareMessage{Body: DeclareBody{Subscriber: &SubscriberDecl{
		ID:   1,
		Key:  WireKeyExpr{ID: 3, Mapping: MappingUnknownRemote},
		Kind: SubscriberPush,
	}}}
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeNetworkMessage(w, msg))
	decoded, err := DecodeNetworkMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*DeclareMessage)
	require.Equal(t, SubscriberPush, got.Body.Subscriber.Kind)
}

func TestDeclareQueryableRoundTrip(t *testing.T) {
	msg := &DeclareMessage{Body: DeclareBody{Queryable: &QueryableDecl{
		ID:          2,
		Key:         WireKeyExpr{ID: 3, Mapping: MappingLocal},
		Complete:    true,
		DistanceLow: 0,
	}}}
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeNetworkMessage(w, msg))
	decoded, err := DecodeNetworkMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*DeclareMessage)
	require.True(t, got.Body.Queryable.Complete)
}

func TestDeclareUndeclareRoundTrip(t *testing.T) {
	msg := &DeclareMessage{Body: DeclareBody{Undeclare: &UndeclareDecl{Kind: UndeclareSubscriber, ID: 1}}}
	w := iobuf.NewWBuf(32, true)
	require.NoError(t, EncodeNetworkMessage(w, msg))
	decoded, err := DecodeNetworkMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*DeclareMessage)
	require.Equal(t, UndeclareSubscriber, got.Body.Undeclare.Kind)
}

func TestPushPutAndDelete(t *testing.T) {
	put := &PushMessage{
		Key:      WireKeyExpr{ID: 3, Mapping: MappingLocal},
		Encoding: Encoding{ID: 1},
		Payload:  []byte("value"),
	}
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeNetworkMessage(w, put))
	decoded, err := DecodeNetworkMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*PushMessage)
	require.False(t, got.IsDelete)
	require.Equal(t, []byte("value"), got.Payload)

	del := &PushMessage{Key: WireKeyExpr{ID: 3, Mapping: MappingLocal}, IsDelete: true}
	w2 := iobuf.NewWBuf(32, true)
	require.NoError(t, EncodeNetworkMessage(w2, del))
	decoded2, err := DecodeNetworkMessage(w2.ToRBuf())
	require.NoError(t, err)
	got2 := decoded2.(*PushMessage)
	require.True(t, got2.IsDelete)
	require.Nil(t, got2.Payload)
}

func TestRequestResponseFlow(t *testing.T) {
	req := &RequestMessage{
		RequestID: 7,
		Key:       WireKeyExpr{Suffix: "demo/example", Mapping: MappingLocal},
		Selector:  "_timeout=1000",
		Target:    TargetBestMatching,
	}
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeNetworkMessage(w, req))
	decoded, err := DecodeNetworkMessage(w.ToRBuf())
	require.NoError(t, err)
	gotReq := decoded.(*RequestMessage)
	require.Equal(t, req.Selector, gotReq.Selector)
	require.Nil(t, gotReq.Payload)

	resp := &ResponseMessage{
		RequestID: 7,
		Key:       WireKeyExpr{Suffix: "demo/example", Mapping: MappingLocal},
		Encoding:  Encoding{ID: 0},
		Payload:   []byte("answer"),
	}
	w2 := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeNetworkMessage(w2, resp))
	decoded2, err := DecodeNetworkMessage(w2.ToRBuf())
	require.NoError(t, err)
	gotResp := decoded2.(*ResponseMessage)
	require.Equal(t, []byte("answer"), gotResp.Payload)

	fin := &ResponseFinalMessage{RequestID: 7}
	w3 := iobuf.NewWBuf(16, true)
	require.NoError(t, EncodeNetworkMessage(w3, fin))
	decoded3, err := DecodeNetworkMessage(w3.ToRBuf())
	require.NoError(t, err)
	require.Equal(t, uint64(7), decoded3.(*ResponseFinalMessage).RequestID)
}

func TestPushResponseAttachmentRoundTrip(t *testing.T) {
	put := &PushMessage{
		Key:        WireKeyExpr{ID: 3, Mapping: MappingLocal},
		Payload:    []byte("value"),
		Attachment: []byte("trace-id=42"),
	}
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeNetworkMessage(w, put))
	decoded, err := DecodeNetworkMessage(w.ToRBuf())
	require.NoError(t, err)
	require.Equal(t, []byte("trace-id=42"), decoded.(*PushMessage).Attachment)

	req := &RequestMessage{RequestID: 1, Key: WireKeyExpr{Suffix: "demo/a"}, Attachment: []byte("ctx")}
	w2 := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeNetworkMessage(w2, req))
	decodedReq, err := DecodeNetworkMessage(w2.ToRBuf())
	require.NoError(t, err)
	require.Equal(t, []byte("ctx"), decodedReq.(*RequestMessage).Attachment)
	require.Nil(t, decodedReq.(*RequestMessage).Payload)

	resp := &ResponseMessage{RequestID: 1, Key: WireKeyExpr{Suffix: "demo/a"}, Payload: []byte("v"), Attachment: []byte("meta")}
	w3 := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeNetworkMessage(w3, resp))
	decodedResp, err := DecodeNetworkMessage(w3.ToRBuf())
	require.NoError(t, err)
	require.Equal(t, []byte("meta"), decodedResp.(*ResponseMessage).Attachment)
}

func TestInterestMessageRoundTrip(t *testing.T) {
	key := WireKeyExpr{Suffix: "demo/**", Mapping: MappingLocal}
	msg := &InterestMessage{
		ID:    1,
		Flags: InterestSubscribers | InterestCurrent | InterestFuture,
		Key:   &key,
	}
	w := iobuf.NewWBuf(64, true)
	require.NoError(t, EncodeNetworkMessage(w, msg))
	decoded, err := DecodeNetworkMessage(w.ToRBuf())
	require.NoError(t, err)
	got := decoded.(*InterestMessage)
	require.Equal(t, msg.Flags, got.Flags)
	require.False(t, got.Cancel)
	require.NotNil(t, got.Key)
	require.Equal(t, "demo/**", got.Key.Suffix)

	cancel := &InterestMessage{ID: 1, Cancel: true}
	w2 := iobuf.NewWBuf(16, true)
	require.NoError(t, EncodeNetworkMessage(w2, cancel))
	decoded2, err := DecodeNetworkMessage(w2.ToRBuf())
	require.NoError(t, err)
	got2 := decoded2.(*InterestMessage)
	require.True(t, got2.Cancel)
	require.Nil(t, got2.Key)
}

func TestJoinNetworkMessagesMultiple(t *testing.T) {
	msgs := []NetworkMessage{
		&DeclareMessage{Body: DeclareBody{Resource: &ResourceDecl{ID: 1, Key: WireKeyExpr{Suffix: "a", Mapping: MappingLocal}}}},
		&PushMessage{Key: WireKeyExpr{ID: 1, Mapping: MappingLocal}, Payload: []byte("x")},
	}
	payload, err := JoinNetworkMessages(msgs)
	require.NoError(t, err)
	decoded, err := SplitNetworkMessages(payload)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	_, ok := decoded[0].(*DeclareMessage)
	require.True(t, ok)
	_, ok = decoded[1].(*PushMessage)
	require.True(t, ok)
}

func TestStreamFramingRoundTrip(t *testing.T) {
	msg := &KeepAliveMessage{}
	framed, err := WriteStreamFrame(msg)
	require.NoError(t, err)
	r := iobuf.NewRBuf(framed)
	n, err := ReadStreamFrameLen(r)
	require.NoError(t, err)
	require.Equal(t, r.Len(), n)
	body, err := r.ReadBytes(n)
	require.NoError(t, err)
	decoded, err := DecodeTransportMessage(iobuf.NewRBuf(body))
	require.NoError(t, err)
	_, ok := decoded.(*KeepAliveMessage)
	require.True(t, ok)
}

func TestDatagramFramingRoundTrip(t *testing.T) {
	msg := &JoinMessage{WhatAmI: WhatAmIPeer, ZID: []byte{1}, LeaseMs: 2500}
	datagram, err := WriteDatagramFrame(msg)
	require.NoError(t, err)
	decoded, err := ReadDatagramFrame(datagram)
	require.NoError(t, err)
	got := decoded.(*JoinMessage)
	require.Equal(t, msg.LeaseMs, got.LeaseMs)
}
