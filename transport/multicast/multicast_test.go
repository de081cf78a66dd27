package multicast

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/wire"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "udp" }
func (a fakeAddr) String() string  { return string(a) }

type inboundDatagram struct {
	addr net.Addr
	data []byte
}

// fakeGroupLink is an in-memory stand-in for a multicast transport.Link:
// Send records outbound datagrams, and the test injects inbound ones
// tagged with a simulated sender address via deliver().
type fakeGroupLink struct {
	mu   sync.Mutex
	cond *sync.Cond
	in   []inboundDatagram
	out  [][]byte
}

func newFakeGroupLink() *fakeGroupLink {
	l := &fakeGroupLink{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *fakeGroupLink) deliver(addr net.Addr, data []byte) {
	l.mu.Lock()
	l.in = append(l.in, inboundDatagram{addr, data})
	l.cond.Broadcast()
	l.mu.Unlock()
}

func (l *fakeGroupLink) Send(b []byte) error {
	l.mu.Lock()
	cp := make([]byte, len(b))
	copy(cp, b)
	l.out = append(l.out, cp)
	l.mu.Unlock()
	return nil
}

func (l *fakeGroupLink) Recv(buf []byte) (int, net.Addr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.in) == 0 {
		l.cond.Wait()
	}
	d := l.in[0]
	l.in = l.in[1:]
	n := copy(buf, d.data)
	return n, d.addr, nil
}

func (l *fakeGroupLink) RecvExact(buf []byte) error { panic("not used by a datagram link") }
func (l *fakeGroupLink) IsStreamed() bool            { return false }
func (l *fakeGroupLink) IsMulticast() bool           { return true }
func (l *fakeGroupLink) IsReliable() bool            { return false }
func (l *fakeGroupLink) MTU() int                    { return 65535 }
func (l *fakeGroupLink) SrcLocator() string          { return "udp/224.0.0.224:7447" }
func (l *fakeGroupLink) DstLocator() string          { return "udp/224.0.0.224:7447" }
func (l *fakeGroupLink) Close() error                { return nil }

func testBackend(t *testing.T) *logext.Backend {
	b, err := logext.New(nil, "CRITICAL", true)
	require.NoError(t, err)
	return b
}

func baseConfig() Config {
	return Config{
		ZID:            []byte{0x01},
		SnResolution:   1<<28 - 1,
		BatchSize:      2048,
		LeaseMs:        1000,
		KeepAliveMs:    1_000_000_000, // effectively disable the ticker's side effects during the test
		JoinIntervalMs: 1_000_000_000,
	}
}

func encodeJoin(t *testing.T, join *wire.JoinMessage) []byte {
	b, err := wire.WriteDatagramFrame(join)
	require.NoError(t, err)
	return b
}

func TestFirstJoinCreatesPeerEntry(t *testing.T) {
	link := newFakeGroupLink()
	backend := testBackend(t)

	joined := make(chan uint64, 1)
	tr := New(link, baseConfig(), backend, func(uint64, wire.NetworkMessage) {}, func(id uint64, zid []byte) {
		joined <- id
	}, func(uint64) {})
	defer tr.Close()

	peerJoin := &wire.JoinMessage{
		WhatAmI:             wire.WhatAmIPeer,
		ZID:                 []byte{0xAA},
		SnResolution:        1<<28 - 1,
		BatchSize:           2048,
		LeaseMs:             1000,
		InitialSNReliable:   5,
		InitialSNBestEffort: 5,
	}
	link.deliver(fakeAddr("10.0.0.1:7447"), encodeJoin(t, peerJoin))

	select {
	case id := <-joined:
		require.Equal(t, uint64(1), id)
	case <-time.After(time.Second):
		t.Fatal("peer join was not observed")
	}

	peers := tr.Peers()
	require.Len(t, peers, 1)
	require.Equal(t, []byte{0xAA}, peers[1].ZID)
}

func TestFrameFromKnownPeerDelivered(t *testing.T) {
	link := newFakeGroupLink()
	backend := testBackend(t)

	delivered := make(chan wire.NetworkMessage, 1)
	tr := New(link, baseConfig(), backend, func(id uint64, m wire.NetworkMessage) {
		delivered <- m
	}, func(uint64, []byte) {}, func(uint64) {})
	defer tr.Close()

	addr := fakeAddr("10.0.0.2:7447")
	join := &wire.JoinMessage{WhatAmI: wire.WhatAmIPeer, ZID: []byte{0xBB}, SnResolution: 1<<28 - 1, BatchSize: 2048, LeaseMs: 1000}
	link.deliver(addr, encodeJoin(t, join))
	time.Sleep(20 * time.Millisecond) // let the peer entry land before the frame

	push := &wire.PushMessage{Key: wire.WireKeyExpr{Suffix: "demo/a"}, Payload: []byte("hi")}
	payload, err := wire.JoinNetworkMessages([]wire.NetworkMessage{push})
	require.NoError(t, err)
	frame := &wire.FrameMessage{Reliable: false, SN: 0, Payload: payload} // join's default InitialSNBestEffort is 0
	b, err := wire.WriteDatagramFrame(frame)
	require.NoError(t, err)
	link.deliver(addr, b)

	select {
	case m := <-delivered:
		got, ok := m.(*wire.PushMessage)
		require.True(t, ok)
		require.Equal(t, []byte("hi"), got.Payload)
	case <-time.After(time.Second):
		t.Fatal("frame was not delivered")
	}
}

func TestFrameFromUnknownPeerDiscarded(t *testing.T) {
	link := newFakeGroupLink()
	backend := testBackend(t)

	delivered := make(chan wire.NetworkMessage, 1)
	tr := New(link, baseConfig(), backend, func(uint64, wire.NetworkMessage) {
		delivered <- nil
	}, func(uint64, []byte) {}, func(uint64) {})
	defer tr.Close()

	frame := &wire.FrameMessage{Reliable: false, SN: 0, Payload: nil}
	b, err := wire.WriteDatagramFrame(frame)
	require.NoError(t, err)
	link.deliver(fakeAddr("10.0.0.9:7447"), b)

	select {
	case <-delivered:
		t.Fatal("frame from an unknown peer must not be delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseDropsPeer(t *testing.T) {
	link := newFakeGroupLink()
	backend := testBackend(t)

	dropped := make(chan uint64, 1)
	tr := New(link, baseConfig(), backend, func(uint64, wire.NetworkMessage) {}, func(uint64, []byte) {}, func(id uint64) {
		dropped <- id
	})
	defer tr.Close()

	addr := fakeAddr("10.0.0.3:7447")
	join := &wire.JoinMessage{WhatAmI: wire.WhatAmIPeer, ZID: []byte{0xCC}, SnResolution: 1<<28 - 1, BatchSize: 2048, LeaseMs: 1000}
	link.deliver(addr, encodeJoin(t, join))
	time.Sleep(20 * time.Millisecond)
	require.Len(t, tr.Peers(), 1)

	closeMsg := &wire.CloseMessage{Reason: wire.CloseReasonGeneric}
	b, err := wire.WriteDatagramFrame(closeMsg)
	require.NoError(t, err)
	link.deliver(addr, b)

	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("peer drop callback was not invoked")
	}
	require.Empty(t, tr.Peers())
}
