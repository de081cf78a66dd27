// Package zenoh is the public API surface of spec.md §2 component J:
// ergonomic Session/Publisher/Subscriber/Queryable/Querier handles,
// thin over the session package. Grounded on the teacher's client.go
// New/Shutdown orchestration (parse config, build the dependent
// subsystems in the right order, return one handle whose Close tears
// them all down) generalized from a Katzenpost mixnet account to a
// zenoh Session opened atop a caller-supplied transport.Link -- link
// drivers (TCP, UDP, TLS, ...) stay out of scope per spec.md §1, so
// Open takes one already established.
package zenoh

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/zenohpico/zenohpico-go/collections"
	"github.com/zenohpico/zenohpico-go/config"
	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/session"
	"github.com/zenohpico/zenohpico-go/transport"
	"github.com/zenohpico/zenohpico-go/transport/multicast"
	"github.com/zenohpico/zenohpico-go/transport/unicast"
	"github.com/zenohpico/zenohpico-go/wire"
	"github.com/zenohpico/zenohpico-go/zerr"
)

const (
	defaultSnResolution = uint64(1<<28 - 1)
	defaultBatchSize    = uint16(65535)
	defaultLeaseMs      = uint64(10_000)
	defaultKeepAliveMs  = uint64(2_500)
	defaultRxBufferSize = 1 << 16
	zidLength           = 16
)

// transportRelay forwards a transport's inbound callbacks to a Session
// that does not exist yet at the point the transport handshake/join
// begins. Both unicast.Open/Accept and multicast.New start delivering
// messages as soon as they return, so the Session (which needs the
// constructed Transport to build its session.Transport adapter) is
// wired in afterward under relay.set; every callback takes relay.mu
// so there is no unsynchronized read of the not-yet-set pointer.
type transportRelay struct {
	mu   sync.Mutex
	sess *session.Session
}

func (r *transportRelay) set(s *session.Session) {
	r.mu.Lock()
	r.sess = s
	r.mu.Unlock()
}

func (r *transportRelay) get() *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess
}

func (r *transportRelay) onUnicastMessage(msg wire.NetworkMessage) {
	if s := r.get(); s != nil {
		s.HandleNetworkMessage(0, msg)
	}
}

func (r *transportRelay) onMulticastMessage(peerID uint64, msg wire.NetworkMessage) {
	if s := r.get(); s != nil {
		s.HandleNetworkMessage(peerID, msg)
	}
}

func (r *transportRelay) onPeerDrop(peerID uint64) {
	if s := r.get(); s != nil {
		s.OnPeerDrop(peerID)
	}
}

// Session is an open zenoh session: one transport plus every local
// declaration made over it, shared across the handles built on top of
// it via reference counting (spec.md §3's "shared across API handles").
type Session struct {
	rc      *collections.Rc[*session.Session]
	zid     []byte
	backend *logext.Backend
}

func newZID() ([]byte, error) {
	zid := make([]byte, zidLength)
	if _, err := rand.Read(zid); err != nil {
		return nil, zerr.Wrap(zerr.KindOutOfMemory, "zenoh: zid generation", err)
	}
	return zid, nil
}

func msOr(d time.Duration, ok bool, def uint64) uint64 {
	if !ok {
		return def
	}
	return uint64(d / time.Millisecond)
}

// Open establishes a Session atop link, negotiating lease/keep-alive/
// rx-buffer-size from cfg's transport/* keys (spec.md §6) with
// zenoh-pico-compatible defaults where cfg leaves them unset. A
// multicast link runs the join protocol (§4.6); any other link runs
// the unicast handshake (§4.5), as the connecting party when
// cfg.Mode() is "client" and as the accepting party otherwise (peer
// mode may either dial out or listen, but a Session only ever speaks
// the accepting half of the handshake over a link it did not itself
// dial).
func Open(cfg *config.Config, link transport.Link, backend *logext.Backend) (*Session, error) {
	if err := cfg.ValidateTLS(); err != nil {
		return nil, err
	}

	zid, err := newZID()
	if err != nil {
		return nil, err
	}

	leaseD, leaseOK := cfg.Lease()
	leaseMs := msOr(leaseD, leaseOK, defaultLeaseMs)
	keepAliveD, keepAliveOK := cfg.KeepAlive()
	keepAliveMs := msOr(keepAliveD, keepAliveOK, defaultKeepAliveMs)

	relay := &transportRelay{}

	var sessTransport session.Transport
	var closeTransport func() error

	if link.IsMulticast() {
		mcfg := multicast.Config{
			ZID:            zid,
			SnResolution:   defaultSnResolution,
			BatchSize:      defaultBatchSize,
			LeaseMs:        leaseMs,
			KeepAliveMs:    keepAliveMs,
			JoinIntervalMs: leaseMs / 4,
		}
		t := multicast.New(link, mcfg, backend, relay.onMulticastMessage, func(uint64, []byte) {}, relay.onPeerDrop)
		sessTransport = session.NewMulticastTransport(t)
		closeTransport = func() error {
			t.Close()
			return link.Close()
		}
	} else {
		ucfg := unicast.Config{
			ZID:          zid,
			SnResolution: defaultSnResolution,
			BatchSize:    defaultBatchSize,
			LeaseMs:      leaseMs,
			KeepAliveMs:  keepAliveMs,
		}
		if n, ok := cfg.RxBufferSize(); ok {
			ucfg.RxBufferSize = n
		} else {
			ucfg.RxBufferSize = defaultRxBufferSize
		}

		var t *unicast.Transport
		var herr error
		if cfg.Mode() == config.ModeClient {
			t, herr = unicast.Open(link, ucfg, relay.onUnicastMessage, func(wire.CloseReason) {}, backend)
		} else {
			t, herr = unicast.Accept(link, ucfg, backend, relay.onUnicastMessage, func(wire.CloseReason) {})
		}
		if herr != nil {
			return nil, herr
		}
		sessTransport = session.NewUnicastTransport(t)
		closeTransport = func() error {
			t.Close()
			return link.Close()
		}
	}

	sess := session.New(sessTransport, backend)
	relay.set(sess)

	rc := collections.NewRc(sess, func(s *session.Session) error {
		s.Close()
		return closeTransport()
	})

	return &Session{rc: rc, zid: zid, backend: backend}, nil
}

// ZID returns this session's zenoh identifier (spec.md §3).
func (s *Session) ZID() []byte { return s.zid }

// Close releases this Session's reference, tearing the transport and
// link down once every handle built on top of it (Publisher,
// Subscriber, Queryable, Querier -- each Loan a reference) has also
// released.
func (s *Session) Close() error { return s.rc.Release() }

// Put publishes payload under ke, per spec.md §3/§4.4.
func (s *Session) Put(ke keyexpr.KeyExpr, payload []byte, enc wire.Encoding, attachment []byte, reliable bool, cc session.CongestionControl) error {
	return s.rc.Value().Put(ke, payload, enc, attachment, reliable, cc)
}

// Delete publishes a deletion under ke, per spec.md §3.
func (s *Session) Delete(ke keyexpr.KeyExpr, reliable bool, cc session.CongestionControl) error {
	return s.rc.Value().Delete(ke, reliable, cc)
}

// Get issues a GET against ke, per spec.md §4.4's Pending Query model.
func (s *Session) Get(ke keyexpr.KeyExpr, selector string, target wire.QueryTarget, mode session.ConsolidationMode, timeout time.Duration, payload []byte, enc wire.Encoding, attachment []byte, callback func(session.Reply), dropFn func()) (*session.PendingQuery, error) {
	return s.rc.Value().Get(ke, selector, target, mode, timeout, payload, enc, attachment, callback, dropFn)
}

// DeclareSubscriber registers a local subscriber on ke and returns a
// handle whose Close retracts it and releases this Session's
// reference count.
func (s *Session) DeclareSubscriber(ke keyexpr.KeyExpr, reliable bool, callback func(session.Sample)) (*Subscriber, error) {
	sub, err := s.rc.Value().DeclareSubscriber(ke, reliable, callback)
	if err != nil {
		return nil, err
	}
	return &Subscriber{sub: sub, rc: s.rc.Loan()}, nil
}

// DeclareQueryable registers a local queryable on ke and returns a
// handle whose Close retracts it and releases this Session's
// reference count.
func (s *Session) DeclareQueryable(ke keyexpr.KeyExpr, complete bool, distance uint64, callback func(*session.Query)) (*Queryable, error) {
	qy, err := s.rc.Value().DeclareQueryable(ke, complete, distance, callback)
	if err != nil {
		return nil, err
	}
	return &Queryable{qy: qy, rc: s.rc.Loan()}, nil
}

// DeclarePublisher returns a Publisher bound to ke, a convenience
// handle over repeated Put/Delete calls with a fixed key/encoding/
// congestion policy (spec.md §3's Publisher entity).
func (s *Session) DeclarePublisher(ke keyexpr.KeyExpr, enc wire.Encoding, reliable bool, cc session.CongestionControl) (*Publisher, error) {
	if ke.IsWild() {
		return nil, zerr.New(zerr.KindInvalidArgument, "zenoh: publisher key expression must not be wild")
	}
	return &Publisher{ke: ke, enc: enc, reliable: reliable, cc: cc, rc: s.rc.Loan()}, nil
}

// DeclareQuerier returns a Querier bound to ke, a convenience handle
// over repeated Get calls against a fixed key/target/consolidation
// policy (spec.md §3's Querier entity).
func (s *Session) DeclareQuerier(ke keyexpr.KeyExpr, target wire.QueryTarget, mode session.ConsolidationMode, timeout time.Duration) (*Querier, error) {
	return &Querier{ke: ke, target: target, mode: mode, timeout: timeout, rc: s.rc.Loan()}, nil
}
