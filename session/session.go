// Package session implements spec.md §4.4: the per-connection
// declaration table, match resolution between inbound PUSH/REQUEST
// messages and locally-registered subscribers/queryables, and the
// consolidation/timeout bookkeeping for outbound GETs.
//
// Grounded on the teacher's session/session.go: the mapLock-guarded
// lookup tables (surbIDMap/messageIDMap/replyNotifyMap) become
// ResourceTable/SubscriptionRegistry/QueryableRegistry/pending-query
// table, and onMessage/onACK's "look the id up, deliver to the
// matching channel" shape becomes handleNetworkMessage's dispatch.
// Unlike the teacher (one Session per mixnet account, talking through
// minclient to exactly one Provider), a Session here wraps whichever
// Transport it was opened over -- unicast (one remote) or multicast
// (a peer set) -- uniformly through the Transport interface below.
package session

import (
	"sync"
	"time"

	"github.com/op/go-logging"

	"github.com/zenohpico/zenohpico-go/collections"
	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/internal/sched"
	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/transport/multicast"
	"github.com/zenohpico/zenohpico-go/transport/unicast"
	"github.com/zenohpico/zenohpico-go/wire"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// CongestionControl re-exports the unicast transport's congestion
// policy so callers need not import transport/unicast directly; a
// multicast-backed Session accepts but ignores it (broadcast has no
// per-receiver backpressure to honor, spec.md §4.6).
type CongestionControl = unicast.CongestionControl

const (
	CongestionBlock = unicast.CongestionBlock
	CongestionDrop  = unicast.CongestionDrop
)

// Transport is the minimal send surface a Session needs; satisfied by
// unicastLink and multicastLink below.
type Transport interface {
	Send(msg wire.NetworkMessage, reliable bool, congestion CongestionControl) error
}

type unicastLink struct{ t *unicast.Transport }

func (u unicastLink) Send(msg wire.NetworkMessage, reliable bool, cc CongestionControl) error {
	return u.t.Send(msg, reliable, cc)
}

// NewUnicastTransport adapts a unicast.Transport to the Session's
// Transport interface.
func NewUnicastTransport(t *unicast.Transport) Transport { return unicastLink{t} }

type multicastLink struct{ t *multicast.Transport }

func (m multicastLink) Send(msg wire.NetworkMessage, reliable bool, _ CongestionControl) error {
	return m.t.Send(msg, reliable)
}

// NewMulticastTransport adapts a multicast.Transport to the Session's
// Transport interface. A multicast Transport's own onMessage callback
// carries the originating PeerEntry id separately from Send, which
// always broadcasts; see HandleNetworkMessage for how peerID threads
// through the rest of the session.
func NewMulticastTransport(t *multicast.Transport) Transport { return multicastLink{t} }

// unicastPeerID is the implicit peer id HandleNetworkMessage uses when
// a Session sits on a unicast Transport, which only ever has one peer
// and so carries no id of its own.
const unicastPeerID = 0

// Session owns one transport exclusively and the full set of
// declarations made over it, per spec.md §3.
type Session struct {
	transport Transport
	log       *logging.Logger

	resources  *ResourceTable
	subs       *SubscriptionRegistry
	queryables *QueryableRegistry
	inbound    *inboundQueryTable

	entityAlloc  *collections.IDAllocator
	requestAlloc *collections.IDAllocator

	pendingMu sync.Mutex
	pending   map[uint64]*PendingQuery

	querySched *sched.Scheduler

	matchingMu        sync.Mutex
	matchingListeners map[uint64]*matchingEntry
	remoteEntities    map[remoteEntityKey]keyexpr.KeyExpr

	closedMu sync.Mutex
	closed   bool
}

// New wraps transport in a Session with empty declaration tables.
func New(transport Transport, backend *logext.Backend) *Session {
	s := &Session{
		transport:         transport,
		log:               backend.GetLogger("session"),
		resources:         NewResourceTable(),
		subs:              NewSubscriptionRegistry(),
		queryables:        NewQueryableRegistry(),
		inbound:           newInboundQueryTable(),
		entityAlloc:       collections.NewIDAllocator(),
		requestAlloc:      collections.NewIDAllocator(),
		pending:           make(map[uint64]*PendingQuery),
		matchingListeners: make(map[uint64]*matchingEntry),
		remoteEntities:    make(map[remoteEntityKey]keyexpr.KeyExpr),
	}
	s.querySched = sched.New(s.onQueryTimeout, backend, "query-timeout")
	return s
}

// Close stops the session's query-timeout scheduler. It does not close
// the underlying transport, which the caller owns.
func (s *Session) Close() {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return
	}
	s.closed = true
	s.closedMu.Unlock()
	s.querySched.Shutdown()
}

// DeclareSubscriber registers a local subscription on ke, announces it
// to peers via DECLARE, and returns a handle whose Close retracts it.
func (s *Session) DeclareSubscriber(ke keyexpr.KeyExpr, reliable bool, callback func(Sample)) (*Subscription, error) {
	id := s.entityAlloc.Next()
	sub := &Subscription{EntityID: id, Key: ke, Reliable: reliable, IsLocal: true, callback: callback}
	sub.dropFn = func() {
		s.subs.Remove(id)
		s.sendUndeclare(wire.UndeclareSubscriber, id, reliable)
	}
	s.subs.Add(sub)
	if err := s.sendDeclareSubscriber(id, ke, reliable); err != nil {
		s.subs.Remove(id)
		return nil, err
	}
	return sub, nil
}

// DeclareQueryable registers a local queryable on ke, announces it to
// peers via DECLARE, and returns a handle whose Close retracts it.
func (s *Session) DeclareQueryable(ke keyexpr.KeyExpr, complete bool, distance uint64, callback func(*Query)) (*Queryable, error) {
	id := s.entityAlloc.Next()
	qy := &Queryable{EntityID: id, Key: ke, Complete: complete, Distance: distance, callback: callback}
	qy.dropFn = func() {
		s.queryables.Remove(id)
		s.sendUndeclare(wire.UndeclareQueryable, id, true)
	}
	s.queryables.Add(qy)
	if err := s.sendDeclareQueryable(id, ke, complete, distance); err != nil {
		s.queryables.Remove(id)
		return nil, err
	}
	return qy, nil
}

// Put publishes payload under ke as a non-deleting Sample, per spec.md
// §4.1/§4.4. attachment is an optional out-of-band byte string
// (spec.md §9 supplement); pass nil when unused.
func (s *Session) Put(ke keyexpr.KeyExpr, payload []byte, enc wire.Encoding, attachment []byte, reliable bool, cc CongestionControl) error {
	if ke.IsWild() {
		return zerr.New(zerr.KindInvalidArgument, "session: put: key expression must not be wild")
	}
	return s.sendPush(ke, payload, enc, false, attachment, reliable, cc)
}

// Delete publishes a deletion under ke, per spec.md §3's Sample.Kind=delete.
func (s *Session) Delete(ke keyexpr.KeyExpr, reliable bool, cc CongestionControl) error {
	if ke.IsWild() {
		return zerr.New(zerr.KindInvalidArgument, "session: delete: key expression must not be wild")
	}
	return s.sendPush(ke, nil, wire.Encoding{}, true, nil, reliable, cc)
}

// Get issues a GET against ke, invoking callback for every consolidated
// reply and dropFn once the query finalizes (RESPONSE_FINAL received,
// or timeout elapses first). Per spec.md §4.4 request ids are
// session-scoped, so PendingQuery is keyed purely by RequestID.
func (s *Session) Get(ke keyexpr.KeyExpr, selector string, target wire.QueryTarget, mode ConsolidationMode, timeout time.Duration, payload []byte, enc wire.Encoding, attachment []byte, callback func(Reply), dropFn func()) (*PendingQuery, error) {
	requestID := s.requestAlloc.Next()
	pq := newPendingQuery(requestID, mode, callback, dropFn)

	s.pendingMu.Lock()
	s.pending[requestID] = pq
	s.pendingMu.Unlock()

	req := &wire.RequestMessage{
		RequestID:  requestID,
		Key:        wire.WireKeyExpr{Suffix: ke.String()},
		Selector:   selector,
		Target:     target,
		Encoding:   enc,
		Payload:    payload,
		Attachment: attachment,
	}
	if err := s.transport.Send(req, true, CongestionBlock); err != nil {
		s.pendingMu.Lock()
		delete(s.pending, requestID)
		s.pendingMu.Unlock()
		return nil, err
	}
	if timeout > 0 {
		s.querySched.Add(timeout, requestID)
	}
	return pq, nil
}

func (s *Session) onQueryTimeout(task interface{}) {
	requestID, ok := task.(uint64)
	if !ok {
		return
	}
	s.pendingMu.Lock()
	pq, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	s.pendingMu.Unlock()
	if ok {
		pq.finalize()
	}
}

// HandleNetworkMessage dispatches one inbound network message, per
// spec.md §4.4. peerID identifies the originating peer: always
// unicastPeerID for a unicast-backed Session, or the multicast
// Transport's PeerEntry id otherwise.
func (s *Session) HandleNetworkMessage(peerID uint64, msg wire.NetworkMessage) {
	switch m := msg.(type) {
	case *wire.DeclareMessage:
		s.handleDeclare(peerID, m.Body)
	case *wire.UndeclareMessage:
		if m.Kind == wire.UndeclareSubscriber || m.Kind == wire.UndeclareQueryable {
			s.matchingNotifyUndeclare(peerID, m.Kind, m.ID)
		} else {
			s.resources.ObservePeerUndeclare(peerID, m.ID)
		}
	case *wire.PushMessage:
		s.handlePush(peerID, m)
	case *wire.RequestMessage:
		s.handleRequest(peerID, m)
	case *wire.ResponseMessage:
		s.handleResponse(m)
	case *wire.ResponseFinalMessage:
		s.handleResponseFinal(m)
	case *wire.InterestMessage:
		s.handleInterest(peerID, m)
	default:
		s.log.Debugf("session: unhandled network message %T from peer %d", msg, peerID)
	}
}

// OnPeerDrop forgets everything mirrored from peerID, including
// collapsing any matching-listener counts that peer's declarations
// contributed to. Wire this to a multicast Transport's onPeerDrop
// callback; a unicast Session's caller should invoke it once, with
// unicastPeerID, on transport close.
func (s *Session) OnPeerDrop(peerID uint64) {
	s.resources.DropPeer(peerID)

	s.matchingMu.Lock()
	var gone []remoteEntityKey
	for rk := range s.remoteEntities {
		if rk.peerID == peerID {
			gone = append(gone, rk)
		}
	}
	s.matchingMu.Unlock()
	for _, rk := range gone {
		s.matchingNotifyUndeclare(rk.peerID, rk.kind, rk.entityID)
	}
}

func (s *Session) handleDeclare(peerID uint64, body wire.DeclareBody) {
	switch {
	case body.Resource != nil:
		if err := s.resources.ObservePeerDeclare(peerID, body.Resource); err != nil {
			s.log.Warningf("session: peer %d declared invalid resource: %v", peerID, err)
		}
	case body.Subscriber != nil:
		s.matchingNotifyDeclare(peerID, wire.UndeclareSubscriber, body.Subscriber.ID, body.Subscriber.Key)
	case body.Queryable != nil:
		s.matchingNotifyDeclare(peerID, wire.UndeclareQueryable, body.Queryable.ID, body.Queryable.Key)
	case body.Undeclare != nil:
		if body.Undeclare.Kind == wire.UndeclareSubscriber || body.Undeclare.Kind == wire.UndeclareQueryable {
			s.matchingNotifyUndeclare(peerID, body.Undeclare.Kind, body.Undeclare.ID)
		} else {
			s.resources.ObservePeerUndeclare(peerID, body.Undeclare.ID)
		}
	}
}

func (s *Session) handlePush(peerID uint64, m *wire.PushMessage) {
	ke, err := s.resources.Resolve(peerID, m.Key)
	if err != nil {
		s.log.Warningf("session: push: %v", err)
		return
	}
	sample := Sample{Key: ke, Payload: m.Payload, IsDelete: m.IsDelete, Encoding: m.Encoding, Ts: m.Ts, Attachment: m.Attachment}
	for _, sub := range s.subs.Matching(ke) {
		sub.Callback(sample)
	}
}

func (s *Session) handleRequest(peerID uint64, m *wire.RequestMessage) {
	ke, err := s.resources.Resolve(peerID, m.Key)
	if err != nil {
		s.log.Warningf("session: request: %v", err)
		s.sendResponseFinal(peerID, m.RequestID)
		return
	}
	matches := s.queryables.Matching(ke)
	if m.Target == wire.TargetBestMatching {
		if best := Best(matches); best != nil {
			matches = []*Queryable{best}
		} else {
			matches = nil
		}
	} else if m.Target == wire.TargetAllComplete {
		complete := matches[:0:0]
		for _, qy := range matches {
			if qy.Complete {
				complete = append(complete, qy)
			}
		}
		matches = complete
	}
	if len(matches) == 0 {
		s.sendResponseFinal(peerID, m.RequestID)
		return
	}
	key := inboundQueryKey{peerID: peerID, requestID: m.RequestID}
	s.inbound.start(key, len(matches))
	for _, qy := range matches {
		q := &Query{
			Key:        ke,
			Selector:   m.Selector,
			Payload:    m.Payload,
			Encoding:   m.Encoding,
			Attachment: m.Attachment,
			peerID:     peerID,
			requestID:  m.RequestID,
			sess:       s,
		}
		qy.Dispatch(q)
	}
}

func (s *Session) finalizeInboundQuery(peerID, requestID uint64) {
	key := inboundQueryKey{peerID: peerID, requestID: requestID}
	if s.inbound.finalize(key) {
		s.sendResponseFinal(peerID, requestID)
	}
}

func (s *Session) handleResponse(m *wire.ResponseMessage) {
	s.pendingMu.Lock()
	pq, ok := s.pending[m.RequestID]
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	ke, err := keyexpr.New(m.Key.Suffix)
	if err != nil {
		s.log.Warningf("session: response: %v", err)
		return
	}
	pq.deliver(Reply{
		Key:    ke,
		IsErr:  m.IsErr,
		Sample: Sample{Key: ke, Payload: m.Payload, Encoding: m.Encoding, Ts: m.Ts, Attachment: m.Attachment},
	})
}

func (s *Session) handleResponseFinal(m *wire.ResponseFinalMessage) {
	s.pendingMu.Lock()
	pq, ok := s.pending[m.RequestID]
	if ok {
		delete(s.pending, m.RequestID)
	}
	s.pendingMu.Unlock()
	if ok {
		pq.finalize()
	}
}

// handleInterest answers a current-state request by replaying this
// session's live local declarations matching the interest's key
// (nil key means "everything"), per spec.md §4.1's late-joiner
// initial-state-sync behavior. Future-update subscriptions
// (InterestFuture) are not tracked: every DECLARE/UNDECLARE this
// session makes is already broadcast to every peer unconditionally, so
// there is nothing extra to send later.
func (s *Session) handleInterest(_ uint64, m *wire.InterestMessage) {
	if m.Cancel || m.Flags&wire.InterestCurrent == 0 {
		return
	}
	var filter keyexpr.KeyExpr
	hasFilter := false
	if m.Key != nil {
		ke, err := keyexpr.New(m.Key.Suffix)
		if err == nil {
			filter, hasFilter = ke, true
		}
	}
	if m.Flags&wire.InterestSubscribers != 0 {
		for _, sub := range s.subs.Matching(anyOr(filter, hasFilter)) {
			s.sendDeclareSubscriber(sub.EntityID, sub.Key, sub.Reliable)
		}
	}
	if m.Flags&wire.InterestQueryables != 0 {
		for _, qy := range s.queryables.Matching(anyOr(filter, hasFilter)) {
			s.sendDeclareQueryable(qy.EntityID, qy.Key, qy.Complete, qy.Distance)
		}
	}
}

// anyOr returns filter if the caller supplied one, else the universal
// key expression "**" so Matching() scans unfiltered.
func anyOr(filter keyexpr.KeyExpr, has bool) keyexpr.KeyExpr {
	if has {
		return filter
	}
	return keyexpr.MustNew("**")
}
