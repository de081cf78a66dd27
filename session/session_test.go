package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/wire"
)

type fakeTransport struct {
	mu  sync.Mutex
	out []wire.NetworkMessage
}

func (f *fakeTransport) Send(msg wire.NetworkMessage, reliable bool, cc CongestionControl) error {
	f.mu.Lock()
	f.out = append(f.out, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) last() wire.NetworkMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		return nil
	}
	return f.out[len(f.out)-1]
}

func (f *fakeTransport) all() []wire.NetworkMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.NetworkMessage, len(f.out))
	copy(out, f.out)
	return out
}

func testBackend(t *testing.T) *logext.Backend {
	b, err := logext.New(nil, "CRITICAL", true)
	require.NoError(t, err)
	return b
}

func TestPushDeliversToMatchingSubscriber(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, testBackend(t))
	defer s.Close()

	ke := keyexpr.MustNew("demo/sensor/a")
	delivered := make(chan Sample, 1)
	_, err := s.DeclareSubscriber(keyexpr.MustNew("demo/sensor/*"), true, func(sample Sample) {
		delivered <- sample
	})
	require.NoError(t, err)

	s.HandleNetworkMessage(unicastPeerID, &wire.PushMessage{
		Key:     wire.WireKeyExpr{Suffix: ke.String()},
		Payload: []byte("42"),
	})

	select {
	case sample := <-delivered:
		require.Equal(t, []byte("42"), sample.Payload)
		require.Equal(t, ke.String(), sample.Key.String())
	case <-time.After(time.Second):
		t.Fatal("sample was not delivered")
	}
}

func TestPushAttachmentDeliveredToSubscriber(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, testBackend(t))
	defer s.Close()

	ke := keyexpr.MustNew("demo/sensor/a")
	delivered := make(chan Sample, 1)
	_, err := s.DeclareSubscriber(keyexpr.MustNew("demo/sensor/*"), true, func(sample Sample) {
		delivered <- sample
	})
	require.NoError(t, err)

	require.NoError(t, s.Put(ke, []byte("42"), wire.Encoding{}, []byte("trace-id-7"), true, CongestionBlock))

	pushed, ok := tr.last().(*wire.PushMessage)
	require.True(t, ok)
	require.Equal(t, []byte("trace-id-7"), pushed.Attachment)

	s.HandleNetworkMessage(unicastPeerID, pushed)

	select {
	case sample := <-delivered:
		require.Equal(t, []byte("trace-id-7"), sample.Attachment)
	case <-time.After(time.Second):
		t.Fatal("sample was not delivered")
	}
}

func TestQueryAttachmentFlowsThroughReply(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, testBackend(t))
	defer s.Close()

	_, err := s.DeclareQueryable(keyexpr.MustNew("demo/get/*"), true, 0, func(q *Query) {
		require.Equal(t, []byte("req-attach"), q.Attachment)
		require.NoError(t, q.Reply(Sample{Key: q.Key, Payload: []byte("answer"), Attachment: []byte("resp-attach")}))
		q.Finalize()
	})
	require.NoError(t, err)

	s.HandleNetworkMessage(unicastPeerID, &wire.RequestMessage{
		RequestID:  9,
		Key:        wire.WireKeyExpr{Suffix: "demo/get/x"},
		Target:     wire.TargetBestMatching,
		Attachment: []byte("req-attach"),
	})

	require.Eventually(t, func() bool {
		msgs := tr.all()
		if len(msgs) < 3 {
			return false
		}
		_, finalOK := msgs[len(msgs)-1].(*wire.ResponseFinalMessage)
		return finalOK
	}, time.Second, time.Millisecond)

	msgs := tr.all()
	resp, ok := msgs[len(msgs)-2].(*wire.ResponseMessage)
	require.True(t, ok)
	require.Equal(t, []byte("resp-attach"), resp.Attachment)
}

func TestPushToNonIntersectingKeyNotDelivered(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, testBackend(t))
	defer s.Close()

	delivered := make(chan Sample, 1)
	_, err := s.DeclareSubscriber(keyexpr.MustNew("demo/sensor/a"), true, func(sample Sample) {
		delivered <- sample
	})
	require.NoError(t, err)

	s.HandleNetworkMessage(unicastPeerID, &wire.PushMessage{
		Key:     wire.WireKeyExpr{Suffix: "demo/sensor/b"},
		Payload: []byte("nope"),
	})

	select {
	case <-delivered:
		t.Fatal("non-intersecting push must not be delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestDispatchesToQueryableAndFinalizes(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, testBackend(t))
	defer s.Close()

	_, err := s.DeclareQueryable(keyexpr.MustNew("demo/get/*"), true, 0, func(q *Query) {
		require.Equal(t, "demo/get/x", q.Key.String())
		require.NoError(t, q.Reply(Sample{Key: q.Key, Payload: []byte("answer")}))
		q.Finalize()
	})
	require.NoError(t, err)

	s.HandleNetworkMessage(unicastPeerID, &wire.RequestMessage{
		RequestID: 7,
		Key:       wire.WireKeyExpr{Suffix: "demo/get/x"},
		Target:    wire.TargetBestMatching,
	})

	require.Eventually(t, func() bool {
		msgs := tr.all()
		if len(msgs) < 3 { // DECLARE queryable, RESPONSE, RESPONSE_FINAL
			return false
		}
		_, finalOK := msgs[len(msgs)-1].(*wire.ResponseFinalMessage)
		return finalOK
	}, time.Second, time.Millisecond)

	msgs := tr.all()
	resp, ok := msgs[len(msgs)-2].(*wire.ResponseMessage)
	require.True(t, ok)
	require.Equal(t, []byte("answer"), resp.Payload)
	final, ok := msgs[len(msgs)-1].(*wire.ResponseFinalMessage)
	require.True(t, ok)
	require.Equal(t, uint64(7), final.RequestID)
}

func TestRequestWithNoMatchSendsImmediateFinal(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, testBackend(t))
	defer s.Close()

	s.HandleNetworkMessage(unicastPeerID, &wire.RequestMessage{
		RequestID: 3,
		Key:       wire.WireKeyExpr{Suffix: "nobody/home"},
		Target:    wire.TargetAll,
	})

	final, ok := tr.last().(*wire.ResponseFinalMessage)
	require.True(t, ok)
	require.Equal(t, uint64(3), final.RequestID)
}

func TestGetConsolidatesMonotonicReplies(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, testBackend(t))
	defer s.Close()

	var replies []Reply
	done := make(chan struct{})
	pq, err := s.Get(keyexpr.MustNew("demo/get/x"), "", wire.TargetAll, ConsolidationMonotonic, time.Second, nil, wire.Encoding{}, nil,
		func(r Reply) { replies = append(replies, r) },
		func() { close(done) },
	)
	require.NoError(t, err)
	require.NotNil(t, pq)

	reqMsg, ok := tr.last().(*wire.RequestMessage)
	require.True(t, ok)
	requestID := reqMsg.RequestID

	s.HandleNetworkMessage(unicastPeerID, &wire.ResponseMessage{RequestID: requestID, Key: wire.WireKeyExpr{Suffix: "demo/get/x"}, Payload: []byte("1")})
	s.HandleNetworkMessage(unicastPeerID, &wire.ResponseMessage{RequestID: requestID, Key: wire.WireKeyExpr{Suffix: "demo/get/x"}, Payload: []byte("2")})
	s.HandleNetworkMessage(unicastPeerID, &wire.ResponseFinalMessage{RequestID: requestID})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pending query never finalized")
	}
	require.Len(t, replies, 1, "monotonic consolidation suppresses the repeated key")
	require.Equal(t, []byte("1"), replies[0].Sample.Payload)
}

func TestMatchingListenerTracksRemoteSubscriber(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, testBackend(t))
	defer s.Close()

	events := make(chan bool, 4)
	l := s.RegisterMatchingListener(keyexpr.MustNew("demo/pub/*"), true, func(matching bool) {
		events <- matching
	})
	defer l.Close()

	s.HandleNetworkMessage(5, &wire.DeclareMessage{Body: wire.DeclareBody{Subscriber: &wire.SubscriberDecl{
		ID:  1,
		Key: wire.WireKeyExpr{Suffix: "demo/pub/a"},
	}}})
	select {
	case matching := <-events:
		require.True(t, matching)
	case <-time.After(time.Second):
		t.Fatal("matching listener did not fire on declare")
	}

	s.OnPeerDrop(5)
	select {
	case matching := <-events:
		require.False(t, matching)
	case <-time.After(time.Second):
		t.Fatal("matching listener did not fire on peer drop")
	}
}
