package session

import (
	"sync"

	"github.com/zenohpico/zenohpico-go/collections"
	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/wire"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// ResourceTable implements spec.md §4.4's Declaration model: a
// per-session table of locally-declared (id -> key expression)
// bindings announced to peers via DECLARE, plus one mirror of the
// same mapping per remote peer, built from the DECLARE messages that
// peer has sent. An id unresolved in a peer's mirror is treated as
// opaque: the caller falls back to the suffix carried alongside it,
// per spec.md §3 ("unresolved aliases treated as opaque").
//
// Grounded on session/session.go's mapLock-guarded maps
// (surbIDMap/messageIDMap), generalized from SURB/message-id lookup to
// numeric-id-to-keyexpr lookup, and on collections.IntMap for the
// per-peer tables themselves.
type ResourceTable struct {
	mu    sync.RWMutex
	local *collections.IntMap[keyexpr.KeyExpr]
	peers map[uint64]*collections.IntMap[keyexpr.KeyExpr]

	alloc *collections.IDAllocator
}

// NewResourceTable creates an empty table.
func NewResourceTable() *ResourceTable {
	return &ResourceTable{
		local: collections.NewIntMap[keyexpr.KeyExpr](),
		peers: make(map[uint64]*collections.IntMap[keyexpr.KeyExpr]),
		alloc: collections.NewIDAllocator(),
	}
}

// DeclareLocal allocates a fresh resource id bound to ke and records it
// for resolving future WireKeyExpr.ID references to it. The caller is
// responsible for announcing the binding to peers via a DECLARE.
func (t *ResourceTable) DeclareLocal(ke keyexpr.KeyExpr) uint64 {
	id := t.alloc.Next()
	t.local.Set(id, ke)
	return id
}

// UndeclareLocal forgets a previously-declared local resource id.
func (t *ResourceTable) UndeclareLocal(id uint64) {
	t.local.Delete(id)
}

// LocalKey returns the key expression a local resource id was bound
// to, for serving a request framed against it.
func (t *ResourceTable) LocalKey(id uint64) (keyexpr.KeyExpr, bool) {
	return t.local.Get(id)
}

func (t *ResourceTable) peerTable(peerID uint64) *collections.IntMap[keyexpr.KeyExpr] {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.peers[peerID]
	if !ok {
		m = collections.NewIntMap[keyexpr.KeyExpr]()
		t.peers[peerID] = m
	}
	return m
}

// ObservePeerDeclare mirrors a ResourceDecl a peer announced, so later
// messages referencing decl.ID by numeric alias from that peer resolve
// correctly.
func (t *ResourceTable) ObservePeerDeclare(peerID uint64, decl *wire.ResourceDecl) error {
	ke, err := keyexpr.New(decl.Key.Suffix)
	if err != nil {
		return err
	}
	t.peerTable(peerID).Set(decl.ID, ke)
	return nil
}

// ObservePeerUndeclare forgets a peer's previously-mirrored resource id.
func (t *ResourceTable) ObservePeerUndeclare(peerID, id uint64) {
	t.peerTable(peerID).Delete(id)
}

// DropPeer discards every resource mirrored for peerID, e.g. on
// transport/peer close.
func (t *ResourceTable) DropPeer(peerID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, peerID)
}

// Resolve turns a WireKeyExpr carried by a message from peerID into a
// concrete key expression, per spec.md §3: ID!=0 looks the alias up in
// that peer's mirror, then Join()s any accompanying suffix; ID==0 uses
// Suffix verbatim.
func (t *ResourceTable) Resolve(peerID uint64, wke wire.WireKeyExpr) (keyexpr.KeyExpr, error) {
	if wke.ID == 0 {
		return keyexpr.New(wke.Suffix)
	}
	base, ok := t.peerTable(peerID).Get(wke.ID)
	if !ok {
		return keyexpr.KeyExpr{}, zerr.Newf(zerr.KindKeyExpr, "session: unresolved resource id %d from peer %d", wke.ID, peerID)
	}
	if wke.Suffix == "" {
		return base, nil
	}
	return keyexpr.Join(base, wke.Suffix)
}
