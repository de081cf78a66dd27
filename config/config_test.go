package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsWhenUnset(t *testing.T) {
	c := New()
	require.Equal(t, ModeClient, c.Mode())
	require.True(t, c.ScoutingMulticastEnabled())
	require.Nil(t, c.ConnectEndpoints())
	_, ok := c.Lease()
	require.False(t, ok)
}

func TestAppendListAndList(t *testing.T) {
	c := New()
	c.AppendList(KeyConnectEndpoint, "tcp/10.0.0.1:7447")
	c.AppendList(KeyConnectEndpoint, "udp/10.0.0.2:7447")
	require.Equal(t, []string{"tcp/10.0.0.1:7447", "udp/10.0.0.2:7447"}, c.ConnectEndpoints())
}

func TestDurationAndIntParsing(t *testing.T) {
	c := New()
	c.Set(KeyTransportTxLease, "10000")
	c.Set(KeyTransportRxBufferSize, "65535")

	lease, ok := c.Lease()
	require.True(t, ok)
	require.Equal(t, 10*time.Second, lease)

	bufSize, ok := c.RxBufferSize()
	require.True(t, ok)
	require.Equal(t, 65535, bufSize)
}

func TestFromFileParsesQuotedSlashKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zenoh.toml")
	contents := `
mode = "peer"
"connect/endpoint" = "tcp/127.0.0.1:7447,tcp/127.0.0.1:7448"
"scouting/multicast/enabled" = "false"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	c, err := FromFile(path)
	require.NoError(t, err)
	require.Equal(t, ModePeer, c.Mode())
	require.Equal(t, []string{"tcp/127.0.0.1:7447", "tcp/127.0.0.1:7448"}, c.ConnectEndpoints())
	require.False(t, c.ScoutingMulticastEnabled())
}

func TestFromFileMissingFile(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
