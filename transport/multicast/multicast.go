// Package multicast implements the group transport session of spec.md
// §4.6: the JOIN announce/refresh protocol, per-peer state tracking
// (PeerEntry), per-peer receive demultiplexing, and the multicast
// lease task. Grounded on the same teacher idioms as transport/
// unicast (listener.go's accept-loop-as-goroutine shape, session/
// arq.go's clockwork ticker), generalized here to a one-to-many peer
// table instead of one-to-one session state.
package multicast

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/op/go-logging"

	"github.com/zenohpico/zenohpico-go/collections"
	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/transport"
	"github.com/zenohpico/zenohpico-go/transport/common"
	"github.com/zenohpico/zenohpico-go/wire"
)

// Config holds the negotiable parameters of spec.md §4.6/§6.
type Config struct {
	ZID            []byte
	SnResolution   uint64
	BatchSize      uint16
	QoS            bool
	LeaseMs        uint64
	KeepAliveMs    uint64 // tick period for the lease task and transmitted-flag check
	JoinIntervalMs uint64
}

// PeerEntry is one remote peer discovered via JOIN, per spec.md §3.
type PeerEntry struct {
	Addr         net.Addr
	ZID          []byte
	LocalID      uint64
	SnResolution uint64
	BatchSize    uint16

	rxSNReliable      uint64
	rxSNBestEffort    uint64
	reassemReliable   *common.Reassembler
	reassemBestEffort *common.Reassembler

	lease              time.Duration
	nextLeaseCountdown time.Duration
	received           atomic.Bool
}

// Transport is one multicast group session atop a single (multicast)
// Link.
type Transport struct {
	link transport.Link
	cfg  Config
	log  *logging.Logger

	txSNReliable   *common.SNCounter
	txSNBestEffort *common.SNCounter
	txMutex        sync.Mutex
	transmitted    atomic.Bool

	mu      sync.Mutex
	peers   map[string]*PeerEntry
	peerIDs *collections.IDAllocator

	onMessage  func(peerID uint64, msg wire.NetworkMessage)
	onPeerJoin func(peerID uint64, zid []byte)
	onPeerDrop func(peerID uint64)

	stopCh    chan struct{}
	closeOnce sync.Once
}

// New opens a multicast transport: it does not itself join any
// network group (that is the Link's concern per spec.md §1's out-of-
// scope link drivers); it starts announcing JOIN, reading, and running
// the lease task over an already-joined Link.
func New(link transport.Link, cfg Config, backend *logext.Backend, onMessage func(uint64, wire.NetworkMessage), onPeerJoin func(uint64, []byte), onPeerDrop func(uint64)) *Transport {
	t := &Transport{
		link:           link,
		cfg:            cfg,
		log:            backend.GetLogger("multicast"),
		txSNReliable:   common.NewSNCounter(0, cfg.SnResolution),
		txSNBestEffort: common.NewSNCounter(0, cfg.SnResolution),
		peers:          make(map[string]*PeerEntry),
		peerIDs:        collections.NewIDAllocator(),
		onMessage:      onMessage,
		onPeerJoin:     onPeerJoin,
		onPeerDrop:     onPeerDrop,
		stopCh:         make(chan struct{}),
	}
	go t.readLoop()
	go t.leaseTask()
	go t.sendJoin() // announce on startup, per spec.md §4.6
	return t
}

// Send broadcasts msg to the group in one FRAME (or FRAGMENT sequence
// if it exceeds the negotiated batch size), under txMutex.
func (t *Transport) Send(msg wire.NetworkMessage, reliable bool) error {
	t.txMutex.Lock()
	defer t.txMutex.Unlock()

	payload, err := wire.JoinNetworkMessages([]wire.NetworkMessage{msg})
	if err != nil {
		return err
	}
	sn := t.nextSN(reliable)
	frame := &wire.FrameMessage{Reliable: reliable, SN: sn, Payload: payload}

	chunkSize := int(t.cfg.BatchSize)
	if chunkSize <= 16 {
		chunkSize = wire.MaxBatchSize
	}
	if len(payload) <= chunkSize-16 {
		if err := writeDatagram(t.link, frame); err != nil {
			return err
		}
		t.transmitted.Store(true)
		return nil
	}

	frags := common.Fragment(payload, chunkSize-16, reliable, sn)
	for i, f := range frags {
		if i > 0 {
			f.SN = t.nextSN(reliable)
		}
		if err := writeDatagram(t.link, f); err != nil {
			return err
		}
	}
	t.transmitted.Store(true)
	return nil
}

func (t *Transport) nextSN(reliable bool) uint64 {
	if reliable {
		return t.txSNReliable.Next()
	}
	return t.txSNBestEffort.Next()
}

func writeDatagram(l transport.Link, m wire.TransportMessage) error {
	framed, err := wire.WriteDatagramFrame(m)
	if err != nil {
		return err
	}
	return l.Send(framed)
}

func (t *Transport) sendJoin() {
	join := &wire.JoinMessage{
		WhatAmI:      wire.WhatAmIPeer,
		ZID:          t.cfg.ZID,
		SnResolution: t.cfg.SnResolution,
		BatchSize:    t.cfg.BatchSize,
		LeaseMs:      t.cfg.LeaseMs,
		QoS:          t.cfg.QoS,
	}
	t.txMutex.Lock()
	join.InitialSNReliable = t.txSNReliable.Next()
	join.InitialSNBestEffort = t.txSNBestEffort.Next()
	err := writeDatagram(t.link, join)
	t.txMutex.Unlock()
	if err != nil {
		t.log.Debugf("sendJoin: %v", err)
		return
	}
	t.transmitted.Store(true)
}

// readLoop is the multicast receive task: one datagram at a time,
// dispatched by sender address and MID.
func (t *Transport) readLoop() {
	buf := make([]byte, wire.MaxBatchSize)
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}
		n, addr, err := t.link.Recv(buf)
		if err != nil {
			t.log.Debugf("readLoop: %v", err)
			return
		}
		msg, err := wire.ReadDatagramFrame(buf[:n])
		if err != nil {
			t.log.Warningf("readLoop: decode error, discarding datagram: %v", err)
			continue
		}
		t.handle(addr, msg)
	}
}

func (t *Transport) handle(addr net.Addr, msg wire.TransportMessage) {
	if join, ok := msg.(*wire.JoinMessage); ok {
		t.handleJoin(addr, join)
		return
	}

	t.mu.Lock()
	peer, ok := t.peers[addr.String()]
	t.mu.Unlock()
	if !ok {
		t.log.Debugf("handle: datagram from unknown peer %v, discarding", addr)
		return
	}

	switch m := msg.(type) {
	case *wire.FrameMessage:
		peer.received.Store(true)
		t.handleFrame(peer, m)
	case *wire.FragmentMessage:
		peer.received.Store(true)
		t.handleFragment(peer, m)
	case *wire.KeepAliveMessage:
		peer.received.Store(true)
	case *wire.CloseMessage:
		t.dropPeer(addr.String())
	default:
		t.log.Debugf("handle: unexpected mid from %v", addr)
	}
}

// handleJoin implements spec.md §4.6's peer-tracking rule: create a
// new PeerEntry on first JOIN from an address, or refresh/reconfigure
// an existing one.
func (t *Transport) handleJoin(addr net.Addr, join *wire.JoinMessage) {
	key := addr.String()
	t.mu.Lock()
	defer t.mu.Unlock()

	peer, exists := t.peers[key]
	if !exists {
		id := t.peerIDs.Next()
		peer = &PeerEntry{
			Addr:              addr,
			ZID:               join.ZID,
			LocalID:           id,
			SnResolution:      join.SnResolution,
			BatchSize:         join.BatchSize,
			reassemReliable:   common.NewReassembler(),
			reassemBestEffort: common.NewReassembler(),
			lease:             time.Duration(join.LeaseMs) * time.Millisecond,
		}
		peer.nextLeaseCountdown = peer.lease
		peer.rxSNReliable = (join.InitialSNReliable + join.SnResolution) & join.SnResolution
		peer.rxSNBestEffort = (join.InitialSNBestEffort + join.SnResolution) & join.SnResolution
		peer.received.Store(true)
		t.peers[key] = peer
		if t.onPeerJoin != nil {
			t.onPeerJoin(id, join.ZID)
		}
		return
	}

	if peer.SnResolution != join.SnResolution || peer.BatchSize != join.BatchSize {
		// Peer reconfigured mid-session: drop and let the next JOIN
		// recreate it cleanly, per spec.md §4.6.
		delete(t.peers, key)
		if t.onPeerDrop != nil {
			t.onPeerDrop(peer.LocalID)
		}
		return
	}
	peer.received.Store(true)
	peer.nextLeaseCountdown = time.Duration(join.LeaseMs) * time.Millisecond
	peer.lease = peer.nextLeaseCountdown
}

func (t *Transport) handleFrame(peer *PeerEntry, m *wire.FrameMessage) {
	if !checkAndAdvanceSN(&peer.rxSNReliable, &peer.rxSNBestEffort, peer.SnResolution, m.Reliable, m.SN) {
		t.log.Warningf("frame: out-of-order sn %d from peer %d, discarding", m.SN, peer.LocalID)
		return
	}
	msgs, err := wire.SplitNetworkMessages(m.Payload)
	if err != nil {
		t.log.Warningf("frame: decode error from peer %d, discarding: %v", peer.LocalID, err)
		return
	}
	for _, nm := range msgs {
		t.onMessage(peer.LocalID, nm)
	}
}

func (t *Transport) handleFragment(peer *PeerEntry, m *wire.FragmentMessage) {
	reassem := peer.reassemReliable
	if !m.Reliable {
		reassem = peer.reassemBestEffort
	}
	if !checkAndAdvanceSN(&peer.rxSNReliable, &peer.rxSNBestEffort, peer.SnResolution, m.Reliable, m.SN) {
		reassem.Reset()
		t.log.Warningf("fragment: out-of-order sn %d from peer %d, defrag buffer reset", m.SN, peer.LocalID)
		return
	}
	complete, err := reassem.Push(m)
	if err != nil {
		t.log.Warningf("fragment: reassembly overflow for peer %d, buffer reset: %v", peer.LocalID, err)
		return
	}
	if complete == nil {
		return
	}
	msgs, err := wire.SplitNetworkMessages(complete)
	if err != nil {
		t.log.Warningf("fragment: decode error from peer %d, discarding: %v", peer.LocalID, err)
		return
	}
	for _, nm := range msgs {
		t.onMessage(peer.LocalID, nm)
	}
}

func checkAndAdvanceSN(rxReliable, rxBestEffort *uint64, resolution uint64, reliable bool, sn uint64) bool {
	expected := rxReliable
	if !reliable {
		expected = rxBestEffort
	}
	next := (*expected + 1) & resolution
	ok := sn == next
	*expected = sn
	return ok
}

func (t *Transport) dropPeer(key string) {
	t.mu.Lock()
	peer, ok := t.peers[key]
	if ok {
		delete(t.peers, key)
	}
	t.mu.Unlock()
	if ok && t.onPeerDrop != nil {
		t.onPeerDrop(peer.LocalID)
	}
}

// leaseTask implements spec.md §4.6's multicast lease task: each tick,
// age every peer's lease countdown (dropping expired peers), emit a
// KEEP_ALIVE if nothing else was transmitted this tick, and re-
// announce JOIN every join_interval.
func (t *Transport) leaseTask() {
	tick := time.Duration(t.cfg.KeepAliveMs) * time.Millisecond
	if tick <= 0 {
		tick = time.Second
	}
	joinInterval := time.Duration(t.cfg.JoinIntervalMs) * time.Millisecond
	if joinInterval <= 0 {
		joinInterval = 30 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	sinceJoin := time.Duration(0)
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.agePeers(tick)
			if !t.transmitted.Swap(false) {
				_ = writeDatagram(t.link, &wire.KeepAliveMessage{})
			}
			sinceJoin += tick
			if sinceJoin >= joinInterval {
				sinceJoin = 0
				go t.sendJoin()
			}
		}
	}
}

func (t *Transport) agePeers(tick time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, peer := range t.peers {
		if peer.received.Swap(false) {
			peer.nextLeaseCountdown = peer.lease
			continue
		}
		peer.nextLeaseCountdown -= tick
		if peer.nextLeaseCountdown <= 0 {
			delete(t.peers, key)
			if t.onPeerDrop != nil {
				t.onPeerDrop(peer.LocalID)
			}
		}
	}
}

// Peers returns a snapshot of currently tracked peers, keyed by their
// local peer id.
func (t *Transport) Peers() map[uint64]*PeerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint64]*PeerEntry, len(t.peers))
	for _, p := range t.peers {
		out[p.LocalID] = p
	}
	return out
}

// Close stops the read and lease tasks and releases the link.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.stopCh)
		t.link.Close()
	})
}
