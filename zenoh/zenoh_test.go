package zenoh

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zenohpico/zenohpico-go/config"
	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/session"
	"github.com/zenohpico/zenohpico-go/wire"
)

// connLink adapts one end of a net.Pipe to transport.Link, the same
// idiom transport/unicast's own tests use for a real handshake without
// a socket.
type connLink struct{ c net.Conn }

func (l *connLink) Send(b []byte) error {
	_, err := l.c.Write(b)
	return err
}

func (l *connLink) Recv(buf []byte) (int, net.Addr, error) {
	n, err := l.c.Read(buf)
	return n, l.c.RemoteAddr(), err
}

func (l *connLink) RecvExact(buf []byte) error {
	_, err := io.ReadFull(l.c, buf)
	return err
}

func (l *connLink) IsStreamed() bool   { return true }
func (l *connLink) IsMulticast() bool  { return false }
func (l *connLink) IsReliable() bool   { return true }
func (l *connLink) MTU() int           { return 65535 }
func (l *connLink) SrcLocator() string { return "tcp/client" }
func (l *connLink) DstLocator() string { return "tcp/server" }
func (l *connLink) Close() error       { return l.c.Close() }

func testBackend(t *testing.T) *logext.Backend {
	b, err := logext.New(nil, "CRITICAL", true)
	require.NoError(t, err)
	return b
}

func openPair(t *testing.T) (*Session, *Session) {
	clientConn, serverConn := net.Pipe()
	backend := testBackend(t)

	clientCfg := config.New()
	clientCfg.Set(config.KeyMode, config.ModeClient)
	serverCfg := config.New()
	serverCfg.Set(config.KeyMode, config.ModePeer)

	var wg sync.WaitGroup
	wg.Add(2)
	var client, server *Session
	var clientErr, serverErr error

	go func() {
		defer wg.Done()
		client, clientErr = Open(clientCfg, &connLink{clientConn}, backend)
	}()
	go func() {
		defer wg.Done()
		server, serverErr = Open(serverCfg, &connLink{serverConn}, backend)
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	return client, server
}

func TestOpenEstablishesUnicastSession(t *testing.T) {
	client, server := openPair(t)
	defer client.Close()
	defer server.Close()

	require.Len(t, client.ZID(), zidLength)
	require.Len(t, server.ZID(), zidLength)
	require.NotEqual(t, client.ZID(), server.ZID())
}

func TestPutDeliversToSubscriberAcrossSession(t *testing.T) {
	client, server := openPair(t)
	defer client.Close()
	defer server.Close()

	delivered := make(chan session.Sample, 1)
	sub, err := server.DeclareSubscriber(keyexpr.MustNew("demo/sensor/*"), true, func(s session.Sample) {
		delivered <- s
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, client.Put(keyexpr.MustNew("demo/sensor/a"), []byte("42"), wire.Encoding{}, []byte("trace"), true, session.CongestionBlock))

	select {
	case s := <-delivered:
		require.Equal(t, []byte("42"), s.Payload)
		require.Equal(t, []byte("trace"), s.Attachment)
	case <-time.After(time.Second):
		t.Fatal("sample was not delivered")
	}
}

func TestPublisherHandleReusesKeyExpression(t *testing.T) {
	client, server := openPair(t)
	defer client.Close()
	defer server.Close()

	delivered := make(chan session.Sample, 1)
	sub, err := server.DeclareSubscriber(keyexpr.MustNew("demo/pub/a"), true, func(s session.Sample) {
		delivered <- s
	})
	require.NoError(t, err)
	defer sub.Close()

	pub, err := client.DeclarePublisher(keyexpr.MustNew("demo/pub/a"), wire.Encoding{}, true, session.CongestionBlock)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Put([]byte("hi"), nil))

	select {
	case s := <-delivered:
		require.Equal(t, []byte("hi"), s.Payload)
	case <-time.After(time.Second):
		t.Fatal("sample was not delivered")
	}
}

func TestGetReachesQueryableAndConsolidatesReply(t *testing.T) {
	client, server := openPair(t)
	defer client.Close()
	defer server.Close()

	qy, err := server.DeclareQueryable(keyexpr.MustNew("demo/get/*"), true, 0, func(q *session.Query) {
		require.NoError(t, q.Reply(session.Sample{Key: q.Key, Payload: []byte("answer")}))
		q.Finalize()
	})
	require.NoError(t, err)
	defer qy.Close()

	var got []session.Reply
	done := make(chan struct{})
	_, err = client.Get(keyexpr.MustNew("demo/get/x"), "", wire.TargetBestMatching, session.ConsolidationAuto, time.Second, nil, wire.Encoding{}, nil,
		func(r session.Reply) { got = append(got, r) },
		func() { close(done) },
	)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("query never finalized")
	}
	require.Len(t, got, 1)
	require.Equal(t, []byte("answer"), got[0].Sample.Payload)
}

func TestSessionCloseReleasesOnlyAfterHandlesClose(t *testing.T) {
	client, server := openPair(t)
	defer server.Close()

	sub, err := client.DeclareSubscriber(keyexpr.MustNew("demo/**"), true, func(session.Sample) {})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, sub.Close())
}
