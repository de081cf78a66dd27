package session

import (
	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/wire"
)

// MatchingListener reports whether at least one remote subscriber (for
// a Publisher) or queryable (for a Querier) currently intersects a key
// expression, per spec.md §4.4's optional matching-notification
// mechanism, driven entirely by the DECLARE/UNDECLARE flow already
// required for match resolution.
type MatchingListener struct {
	id uint64
	s  *Session
}

// Close unregisters the listener; no further callback invocations follow.
func (l *MatchingListener) Close() {
	l.s.matchingMu.Lock()
	delete(l.s.matchingListeners, l.id)
	l.s.matchingMu.Unlock()
}

type matchingEntry struct {
	key      keyexpr.KeyExpr
	wantSub  bool // true: watches subscriber declarations; false: queryables
	callback func(matching bool)
	count    int
}

type remoteEntityKey struct {
	peerID   uint64
	kind     wire.UndeclareKind
	entityID uint64
}

// RegisterMatchingListener reports, via callback(true)/callback(false),
// transitions of "at least one remote subscriber intersecting key
// exists" (wantSub=true) or "...queryable..." (wantSub=false). callback
// is invoked synchronously from the session's message-handling path;
// it must not block or call back into the Session.
func (s *Session) RegisterMatchingListener(key keyexpr.KeyExpr, wantSub bool, callback func(matching bool)) *MatchingListener {
	id := s.entityAlloc.Next()
	entry := &matchingEntry{key: key, wantSub: wantSub, callback: callback}

	s.matchingMu.Lock()
	// Seed the initial count from already-known remote entities so a
	// listener registered after the relevant DECLARE still sees the
	// correct starting state.
	for rk, ke := range s.remoteEntities {
		if matchKind(wantSub) != rk.kind {
			continue
		}
		if ke.Intersects(key) {
			entry.count++
		}
	}
	if entry.count > 0 {
		callback(true)
	}
	s.matchingListeners[id] = entry
	s.matchingMu.Unlock()

	return &MatchingListener{id: id, s: s}
}

func matchKind(wantSub bool) wire.UndeclareKind {
	if wantSub {
		return wire.UndeclareSubscriber
	}
	return wire.UndeclareQueryable
}

// matchingNotifyDeclare records a remote subscriber/queryable DECLARE
// and fires any listener whose match count transitions from zero.
func (s *Session) matchingNotifyDeclare(peerID uint64, kind wire.UndeclareKind, entityID uint64, wke wire.WireKeyExpr) {
	ke, err := s.resources.Resolve(peerID, wke)
	if err != nil {
		s.log.Warningf("session: matching: %v", err)
		return
	}
	s.notify(remoteEntityKey{peerID: peerID, kind: kind, entityID: entityID}, ke, true)
}

// matchingNotifyUndeclare records a remote subscriber/queryable
// UNDECLARE (or an implicit drop via OnPeerDrop) and fires any
// listener whose match count transitions to zero.
func (s *Session) matchingNotifyUndeclare(peerID uint64, kind wire.UndeclareKind, entityID uint64) {
	s.notify(remoteEntityKey{peerID: peerID, kind: kind, entityID: entityID}, keyexpr.KeyExpr{}, false)
}

func (s *Session) notify(rk remoteEntityKey, ke keyexpr.KeyExpr, present bool) {
	s.matchingMu.Lock()
	defer s.matchingMu.Unlock()

	if present {
		s.remoteEntities[rk] = ke
	} else {
		prev, ok := s.remoteEntities[rk]
		if !ok {
			return
		}
		ke = prev
		delete(s.remoteEntities, rk)
	}

	wantSub := rk.kind == wire.UndeclareSubscriber
	for _, entry := range s.matchingListeners {
		if entry.wantSub != wantSub || !entry.key.Intersects(ke) {
			continue
		}
		before := entry.count
		if present {
			entry.count++
		} else if entry.count > 0 {
			entry.count--
		}
		if before == 0 && entry.count > 0 {
			entry.callback(true)
		} else if before > 0 && entry.count == 0 {
			entry.callback(false)
		}
	}
}
