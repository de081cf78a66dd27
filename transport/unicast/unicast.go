// Package unicast implements the point-to-point transport session of
// spec.md §4.5: the INIT/OPEN handshake, the send path (FRAME/FRAGMENT
// encoding under tx_mutex), the receive path (read task), and the
// lease task (keep-alive emission, lease-expiry detection). Grounded
// on the teacher's listener.go accept-loop idiom for the read-task
// goroutine shape and session/arq.go's worker.Worker/clockwork pairing
// for the lease task, generalized from katzenpost's SURB-retry timer
// to zenoh's keep-alive/lease timer.
package unicast

import (
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/op/go-logging"

	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/transport"
	"github.com/zenohpico/zenohpico-go/transport/common"
	"github.com/zenohpico/zenohpico-go/wire"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// Config holds the negotiable parameters of spec.md §4.5/§6
// (transport/link/tx/lease, transport/link/tx/keep_alive,
// transport/link/rx/buffer_size).
type Config struct {
	ZID          []byte // 1-16 bytes, this node's zenoh id
	SnResolution uint64 // e.g. 1<<28 - 1
	BatchSize    uint16
	QoS          bool
	LeaseMs      uint64
	KeepAliveMs  uint64
	RxBufferSize int
}

// CongestionControl selects tx_mutex acquisition strategy in the send
// path (spec.md §4.5 step 1).
type CongestionControl int

const (
	CongestionBlock CongestionControl = iota
	CongestionDrop
)

// Transport is one open unicast session atop a single Link.
type Transport struct {
	link transport.Link
	cfg  Config
	log  *logging.Logger

	remoteZID    []byte
	remoteLease  uint64
	snResolution uint64

	txMutex        sync.Mutex
	txSNReliable   *common.SNCounter
	txSNBestEffort *common.SNCounter

	rxMutex           sync.Mutex
	rxSNReliable      uint64
	rxSNBestEffort    uint64
	reassemReliable   *common.Reassembler
	reassemBestEffort *common.Reassembler

	transmitted atomic.Bool
	received    atomic.Bool

	onMessage func(msg wire.NetworkMessage)
	onClose   func(reason wire.CloseReason)

	stopCh    chan struct{}
	closeOnce sync.Once
}

// randomInitialSN returns a random starting sequence number strictly
// less than resolution, per spec.md §4.5 step 2 ("pick a random
// initial SN s0 < sn_resolution").
func randomInitialSN(resolution uint64) (uint64, error) {
	if resolution == 0 {
		return 0, zerr.New(zerr.KindInvalidArgument, "unicast: sn_resolution must be > 0")
	}
	max := int64(resolution)
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return 0, zerr.Wrap(zerr.KindNotAvailable, "unicast: random sn", err)
	}
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v % uint64(max), nil
}

// Open drives the client side of the handshake (spec.md §4.5 steps
// 1-4) and, on success, starts the read task and lease task.
func Open(link transport.Link, cfg Config, onMessage func(wire.NetworkMessage), onClose func(wire.CloseReason), backend *logext.Backend) (*Transport, error) {
	s0, err := randomInitialSN(cfg.SnResolution)
	if err != nil {
		link.Close()
		return nil, err
	}

	syn := &wire.InitMessage{
		Ack:          false,
		Version:      wire.ProtocolVersion,
		WhatAmI:      wire.WhatAmIClient,
		ZID:          cfg.ZID,
		SnResolution: cfg.SnResolution,
		BatchSize:    cfg.BatchSize,
		QoS:          cfg.QoS,
	}
	if err := common.WriteMessage(link, syn); err != nil {
		link.Close()
		return nil, zerr.Wrap(zerr.KindOpenOther, "unicast: send init syn", err)
	}

	initAckMsg, err := common.ReadMessage(link)
	if err != nil {
		link.Close()
		return nil, zerr.Wrap(zerr.KindOpenOther, "unicast: recv init ack", err)
	}
	initAck, ok := initAckMsg.(*wire.InitMessage)
	if !ok || !initAck.Ack {
		link.Close()
		return nil, zerr.New(zerr.KindOpenOther, "unicast: expected init ack")
	}
	if initAck.SnResolution > cfg.SnResolution {
		link.Close()
		return nil, zerr.New(zerr.KindOpenSnResolution, "unicast: peer sn_resolution exceeds requested")
	}
	if initAck.Version != wire.ProtocolVersion {
		link.Close()
		return nil, zerr.New(zerr.KindOpenVersionMismatch, "unicast: protocol version mismatch")
	}
	negotiatedRes := initAck.SnResolution

	openSyn := &wire.OpenMessage{
		Ack:       false,
		LeaseMs:   cfg.LeaseMs,
		InitialSN: s0,
		Cookie:    initAck.Cookie,
	}
	if err := common.WriteMessage(link, openSyn); err != nil {
		link.Close()
		return nil, zerr.Wrap(zerr.KindOpenOther, "unicast: send open syn", err)
	}

	openAckMsg, err := common.ReadMessage(link)
	if err != nil {
		link.Close()
		return nil, zerr.Wrap(zerr.KindOpenOther, "unicast: recv open ack", err)
	}
	openAck, ok := openAckMsg.(*wire.OpenMessage)
	if !ok || !openAck.Ack {
		link.Close()
		return nil, zerr.New(zerr.KindOpenOther, "unicast: expected open ack")
	}

	t := newTransport(link, cfg, initAck.ZID, openAck.LeaseMs, negotiatedRes, s0, openAck.InitialSN, backend, onMessage, onClose)
	t.start()
	return t, nil
}

// Accept drives the responder side of the handshake: read INIT syn,
// send INIT ack with a cookie, read OPEN syn, send OPEN ack.
func Accept(link transport.Link, cfg Config, backend *logext.Backend, onMessage func(wire.NetworkMessage), onClose func(wire.CloseReason)) (*Transport, error) {
	synMsg, err := common.ReadMessage(link)
	if err != nil {
		link.Close()
		return nil, zerr.Wrap(zerr.KindOpenOther, "unicast: recv init syn", err)
	}
	syn, ok := synMsg.(*wire.InitMessage)
	if !ok || syn.Ack {
		link.Close()
		return nil, zerr.New(zerr.KindOpenOther, "unicast: expected init syn")
	}

	negotiatedRes := cfg.SnResolution
	if syn.SnResolution < negotiatedRes {
		negotiatedRes = syn.SnResolution
	}

	cookie := make([]byte, 16)
	if _, err := rand.Read(cookie); err != nil {
		link.Close()
		return nil, zerr.Wrap(zerr.KindNotAvailable, "unicast: cookie", err)
	}

	initAck := &wire.InitMessage{
		Ack:          true,
		Version:      wire.ProtocolVersion,
		WhatAmI:      wire.WhatAmIPeer,
		ZID:          cfg.ZID,
		SnResolution: negotiatedRes,
		BatchSize:    cfg.BatchSize,
		QoS:          cfg.QoS,
		Cookie:       cookie,
	}
	if err := common.WriteMessage(link, initAck); err != nil {
		link.Close()
		return nil, zerr.Wrap(zerr.KindOpenOther, "unicast: send init ack", err)
	}

	openSynMsg, err := common.ReadMessage(link)
	if err != nil {
		link.Close()
		return nil, zerr.Wrap(zerr.KindOpenOther, "unicast: recv open syn", err)
	}
	openSyn, ok := openSynMsg.(*wire.OpenMessage)
	if !ok || openSyn.Ack {
		link.Close()
		return nil, zerr.New(zerr.KindOpenOther, "unicast: expected open syn")
	}

	s0, err := randomInitialSN(negotiatedRes)
	if err != nil {
		link.Close()
		return nil, err
	}
	openAck := &wire.OpenMessage{
		Ack:       true,
		LeaseMs:   cfg.LeaseMs,
		InitialSN: s0,
	}
	if err := common.WriteMessage(link, openAck); err != nil {
		link.Close()
		return nil, zerr.Wrap(zerr.KindOpenOther, "unicast: send open ack", err)
	}

	t := newTransport(link, cfg, syn.ZID, openSyn.LeaseMs, negotiatedRes, s0, openSyn.InitialSN, backend, onMessage, onClose)
	t.start()
	return t, nil
}

func newTransport(link transport.Link, cfg Config, remoteZID []byte, remoteLease, snResolution, txInitialSN, rxInitialSN uint64, backend *logext.Backend, onMessage func(wire.NetworkMessage), onClose func(wire.CloseReason)) *Transport {
	t := &Transport{
		link:              link,
		cfg:               cfg,
		log:               backend.GetLogger("unicast"),
		remoteZID:         remoteZID,
		remoteLease:       remoteLease,
		snResolution:      snResolution,
		txSNReliable:      common.NewSNCounter(txInitialSN, snResolution),
		txSNBestEffort:    common.NewSNCounter(txInitialSN, snResolution),
		reassemReliable:   common.NewReassembler(),
		reassemBestEffort: common.NewReassembler(),
		onMessage:         onMessage,
		onClose:           onClose,
		stopCh:            make(chan struct{}),
	}
	// rx_sn_reliable = rx_sn_best_effort = remote_initial_sn - 1 (mod sn_resolution), spec.md §4.5 step 4.
	t.rxSNReliable = (rxInitialSN + snResolution) & snResolution
	t.rxSNBestEffort = t.rxSNReliable
	return t
}

func (t *Transport) start() {
	go t.readLoop()
	go t.leaseTask()
}

// Send implements the send path of spec.md §4.5: frame msg under
// tx_mutex with the next reliability-scoped SN, falling back to
// fragmentation when it doesn't fit in one batch.
func (t *Transport) Send(msg wire.NetworkMessage, reliable bool, congestion CongestionControl) error {
	if congestion == CongestionDrop {
		if !t.txMutex.TryLock() {
			t.log.Debug("send: dropped under congestion")
			return nil
		}
	} else {
		t.txMutex.Lock()
	}
	defer t.txMutex.Unlock()

	payload, err := wire.JoinNetworkMessages([]wire.NetworkMessage{msg})
	if err != nil {
		return err
	}

	sn := t.nextSN(reliable)
	frame := &wire.FrameMessage{Reliable: reliable, SN: sn, Payload: payload}

	fits, err := fitsOneBatch(frame, int(t.cfg.BatchSize))
	if err != nil {
		return err
	}
	if fits {
		if err := common.WriteMessage(t.link, frame); err != nil {
			return zerr.Wrap(zerr.KindIOGeneric, "unicast: send frame", err)
		}
		t.transmitted.Store(true)
		return nil
	}

	chunkSize := int(t.cfg.BatchSize) - 16 // leave room for the FRAGMENT header
	if chunkSize <= 0 {
		chunkSize = wire.MaxBatchSize - 16
	}
	frags := common.Fragment(payload, chunkSize, reliable, sn)
	for i, f := range frags {
		if i > 0 {
			f.SN = t.nextSN(reliable)
		}
		if err := common.WriteMessage(t.link, f); err != nil {
			return zerr.Wrap(zerr.KindIOGeneric, "unicast: send fragment", err)
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

// fitsOneBatch reports whether frame, once fully encoded, stays within
// batchSize bytes.
func fitsOneBatch(frame *wire.FrameMessage, batchSize int) (bool, error) {
	w := iobuf.NewWBuf(256, true)
	if err := wire.EncodeTransportMessage(w, frame); err != nil {
		return false, err
	}
	return w.Len() <= batchSize, nil
}

// readLoop is the read task of spec.md §4.5: one blocking read of a
// transport message at a time, dispatched by MID.
func (t *Transport) readLoop() {
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}
		msg, err := common.ReadMessage(t.link)
		if err != nil {
			t.log.Debugf("readLoop: %v", err)
			t.closeLocal(wire.CloseReasonGeneric)
			return
		}
		t.received.Store(true)
		t.handleTransportMessage(msg)
	}
}

func (t *Transport) handleTransportMessage(msg wire.TransportMessage) {
	switch m := msg.(type) {
	case *wire.FrameMessage:
		t.handleFrame(m)
	case *wire.FragmentMessage:
		t.handleFragment(m)
	case *wire.KeepAliveMessage:
		// received flag already set above; nothing else to do.
	case *wire.CloseMessage:
		t.closeRemote(m.Reason)
	case *wire.InitMessage, *wire.OpenMessage:
		t.log.Debug("readLoop: ignoring INIT/OPEN on established session")
	default:
		t.log.Debugf("readLoop: unexpected message mid on established session")
	}
}

func (t *Transport) handleFrame(m *wire.FrameMessage) {
	t.rxMutex.Lock()
	ok := t.checkAndAdvanceSN(m.Reliable, m.SN)
	t.rxMutex.Unlock()
	if !ok {
		t.log.Warningf("frame: out-of-order sn %d, discarding", m.SN)
		return
	}
	msgs, err := wire.SplitNetworkMessages(m.Payload)
	if err != nil {
		t.log.Warningf("frame: decode error, discarding: %v", err)
		return
	}
	for _, nm := range msgs {
		t.onMessage(nm)
	}
}

func (t *Transport) handleFragment(m *wire.FragmentMessage) {
	t.rxMutex.Lock()
	ok := t.checkAndAdvanceSN(m.Reliable, m.SN)
	reassem := t.reassemblerFor(m.Reliable)
	if !ok {
		reassem.Reset()
		t.rxMutex.Unlock()
		t.log.Warningf("fragment: out-of-order sn %d, defrag buffer reset", m.SN)
		return
	}
	complete, err := reassem.Push(m)
	t.rxMutex.Unlock()
	if err != nil {
		t.log.Warningf("fragment: reassembly overflow, buffer reset: %v", err)
		return
	}
	if complete == nil {
		return
	}
	msgs, err := wire.SplitNetworkMessages(complete)
	if err != nil {
		t.log.Warningf("fragment: decode error after reassembly, discarding: %v", err)
		return
	}
	for _, nm := range msgs {
		t.onMessage(nm)
	}
}

func (t *Transport) reassemblerFor(reliable bool) *common.Reassembler {
	if reliable {
		return t.reassemReliable
	}
	return t.reassemBestEffort
}

// checkAndAdvanceSN validates sn monotonicity for the given reliability
// channel (spec.md §4.7: "on any out-of-order SN, clear the matching
// defrag buffer before discarding the frame") and advances the
// expected-next counter on success. Caller holds rxMutex.
func (t *Transport) checkAndAdvanceSN(reliable bool, sn uint64) bool {
	expected := &t.rxSNReliable
	if !reliable {
		expected = &t.rxSNBestEffort
	}
	next := (*expected + 1) & t.snResolution
	ok := sn == next
	*expected = sn
	return ok
}

// leaseTask implements spec.md §4.5's lease task with the same
// decrementing-countdown tick loop as multicast's (§4.6): §4.5's prose
// doesn't pin a tick granularity, so this reuses the clearer multicast
// formulation for both variants (see DESIGN.md).
func (t *Transport) leaseTask() {
	tick := time.Duration(t.cfg.KeepAliveMs) * time.Millisecond
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	countdown := time.Duration(t.remoteLease) * time.Millisecond

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if t.received.Swap(false) {
				countdown = time.Duration(t.remoteLease) * time.Millisecond
			} else {
				countdown -= tick
				if countdown <= 0 {
					t.log.Warning("leaseTask: lease expired, closing")
					t.closeLocal(wire.CloseReasonExpired)
					return
				}
			}
			if !t.transmitted.Swap(false) {
				if err := common.WriteMessage(t.link, &wire.KeepAliveMessage{}); err != nil {
					t.log.Debugf("leaseTask: keep_alive send failed: %v", err)
				}
			}
		}
	}
}

// closeLocal tears down the session on a local decision (read error,
// lease expiry): best-effort notify the peer, then release resources.
func (t *Transport) closeLocal(reason wire.CloseReason) {
	t.closeOnce.Do(func() {
		_ = common.WriteMessage(t.link, &wire.CloseMessage{Reason: reason})
		t.teardown(reason)
	})
}

// closeRemote tears down the session on receipt of a CLOSE from the
// peer; no reply is sent.
func (t *Transport) closeRemote(reason wire.CloseReason) {
	t.closeOnce.Do(func() {
		t.teardown(reason)
	})
}

func (t *Transport) teardown(reason wire.CloseReason) {
	close(t.stopCh)
	t.link.Close()
	if t.onClose != nil {
		t.onClose(reason)
	}
}

// Close initiates a graceful local shutdown (spec.md §5's "idempotent
// resource release").
func (t *Transport) Close() {
	t.closeLocal(wire.CloseReasonGeneric)
}

// RemoteZID returns the peer's zenoh id, captured from INIT.
func (t *Transport) RemoteZID() []byte { return t.remoteZID }
