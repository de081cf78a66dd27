package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/wire"
)

func TestResourceTableResolvesBySuffixWhenNoAlias(t *testing.T) {
	rt := NewResourceTable()
	ke, err := rt.Resolve(1, wire.WireKeyExpr{Suffix: "demo/a"})
	require.NoError(t, err)
	require.Equal(t, "demo/a", ke.String())
}

func TestResourceTableResolvesAliasFromPeerDeclare(t *testing.T) {
	rt := NewResourceTable()
	require.NoError(t, rt.ObservePeerDeclare(1, &wire.ResourceDecl{ID: 4, Key: wire.WireKeyExpr{Suffix: "demo/base"}}))

	ke, err := rt.Resolve(1, wire.WireKeyExpr{ID: 4})
	require.NoError(t, err)
	require.Equal(t, "demo/base", ke.String())

	ke, err = rt.Resolve(1, wire.WireKeyExpr{ID: 4, Suffix: "child"})
	require.NoError(t, err)
	require.Equal(t, "demo/base/child", ke.String())
}

func TestResourceTableUnresolvedAliasErrors(t *testing.T) {
	rt := NewResourceTable()
	_, err := rt.Resolve(1, wire.WireKeyExpr{ID: 99})
	require.Error(t, err)
}

func TestResourceTableAliasIsolatedPerPeer(t *testing.T) {
	rt := NewResourceTable()
	require.NoError(t, rt.ObservePeerDeclare(1, &wire.ResourceDecl{ID: 1, Key: wire.WireKeyExpr{Suffix: "demo/from-1"}}))
	_, err := rt.Resolve(2, wire.WireKeyExpr{ID: 1})
	require.Error(t, err, "peer 2 never declared resource id 1")
}

func TestResourceTableDropPeerForgetsMirror(t *testing.T) {
	rt := NewResourceTable()
	require.NoError(t, rt.ObservePeerDeclare(1, &wire.ResourceDecl{ID: 1, Key: wire.WireKeyExpr{Suffix: "demo/x"}}))
	rt.DropPeer(1)
	_, err := rt.Resolve(1, wire.WireKeyExpr{ID: 1})
	require.Error(t, err)
}

func TestResourceTableDeclareLocalAllocatesIncreasingIDs(t *testing.T) {
	rt := NewResourceTable()
	a := rt.DeclareLocal(keyexpr.MustNew("demo/a"))
	b := rt.DeclareLocal(keyexpr.MustNew("demo/b"))
	require.Less(t, a, b)

	ke, ok := rt.LocalKey(a)
	require.True(t, ok)
	require.Equal(t, "demo/a", ke.String())

	rt.UndeclareLocal(a)
	_, ok = rt.LocalKey(a)
	require.False(t, ok)
}
