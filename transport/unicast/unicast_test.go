package unicast

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/wire"
)

// connLink adapts a net.Conn (here, one end of a net.Pipe) to
// transport.Link for testing the handshake/send/receive paths without
// a real socket.
type connLink struct {
	c net.Conn
}

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

func baseConfig(zid byte) Config {
	return Config{
		ZID:          []byte{zid},
		SnResolution: 1<<28 - 1,
		BatchSize:    1024,
		LeaseMs:      500,
		KeepAliveMs:  50,
	}
}

func TestHandshakeEstablishesSession(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	backend := testBackend(t)

	var wg sync.WaitGroup
	wg.Add(2)
	var clientT, serverT *Transport
	var clientErr, serverErr error

	go func() {
		defer wg.Done()
		clientT, clientErr = Open(&connLink{clientConn}, baseConfig(0xAA), func(wire.NetworkMessage) {}, func(wire.CloseReason) {}, backend)
	}()
	go func() {
		defer wg.Done()
		serverT, serverErr = Accept(&connLink{serverConn}, baseConfig(0xBB), backend, func(wire.NetworkMessage) {}, func(wire.CloseReason) {})
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.Equal(t, []byte{0xBB}, clientT.RemoteZID())
	require.Equal(t, []byte{0xAA}, serverT.RemoteZID())

	clientT.Close()
	serverT.Close()
}

func TestSendDeliversPushMessage(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	backend := testBackend(t)

	received := make(chan wire.NetworkMessage, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	var clientT, serverT *Transport

	go func() {
		defer wg.Done()
		clientT, _ = Open(&connLink{clientConn}, baseConfig(0x01), func(wire.NetworkMessage) {}, func(wire.CloseReason) {}, backend)
	}()
	go func() {
		defer wg.Done()
		serverT, _ = Accept(&connLink{serverConn}, baseConfig(0x02), backend, func(m wire.NetworkMessage) {
			received <- m
		}, func(wire.CloseReason) {})
	}()
	wg.Wait()
	require.NotNil(t, clientT)
	require.NotNil(t, serverT)

	push := &wire.PushMessage{
		Key:     wire.WireKeyExpr{Suffix: "demo/example"},
		Payload: []byte("hello"),
	}
	require.NoError(t, clientT.Send(push, true, CongestionBlock))

	select {
	case m := <-received:
		got, ok := m.(*wire.PushMessage)
		require.True(t, ok)
		require.Equal(t, []byte("hello"), got.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("push message was not delivered")
	}

	clientT.Close()
	serverT.Close()
}

func TestLeaseTaskSendsKeepAlive(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	backend := testBackend(t)

	var wg sync.WaitGroup
	wg.Add(2)
	var clientT, serverT *Transport

	cfg := baseConfig(0x01)
	cfg.KeepAliveMs = 20

	go func() {
		defer wg.Done()
		clientT, _ = Open(&connLink{clientConn}, cfg, func(wire.NetworkMessage) {}, func(wire.CloseReason) {}, backend)
	}()
	go func() {
		defer wg.Done()
		serverT, _ = Accept(&connLink{serverConn}, baseConfig(0x02), backend, func(wire.NetworkMessage) {}, func(wire.CloseReason) {})
	}()
	wg.Wait()

	// With nothing else to send, the client's lease task must emit a
	// KEEP_ALIVE within a couple of ticks; the server's read task
	// observes it by keeping `received` true (no assertion surface
	// beyond "no panics/deadlocks" without exporting internal state,
	// so this just exercises the path end-to-end).
	time.Sleep(100 * time.Millisecond)

	clientT.Close()
	serverT.Close()
}
