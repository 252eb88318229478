package registry

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/esbus/public/addr"
)

func openTest(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSetGetRoundTrip(t *testing.T) {
	r := openTest(t)

	a, err := addr.NewIPv4(net.ParseIP("127.0.0.1"))
	require.NoError(t, err)

	seen := time.Now().Truncate(time.Second)
	require.NoError(t, r.Set(Peer{Identity: []byte("node-1"), Address: a, LastSeen: seen}))

	got, ok, err := r.Get([]byte("node-1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("node-1"), got.Identity)
	assert.True(t, a.Equal(got.Address))
	assert.True(t, seen.Equal(got.LastSeen))
}

func TestGetMissingIdentity(t *testing.T) {
	r := openTest(t)
	_, ok, err := r.Get([]byte("ghost"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRemovesRecord(t *testing.T) {
	r := openTest(t)
	a, err := addr.NewIPv4(net.ParseIP("10.0.0.1"))
	require.NoError(t, err)
	require.NoError(t, r.Set(Peer{Identity: []byte("node-1"), Address: a, LastSeen: time.Now()}))

	require.NoError(t, r.Delete([]byte("node-1")))
	_, ok, err := r.Get([]byte("node-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteUnknownIdentityIsNotError(t *testing.T) {
	r := openTest(t)
	assert.NoError(t, r.Delete([]byte("never-existed")))
}

func TestListReturnsAllPeers(t *testing.T) {
	r := openTest(t)
	v4, err := addr.NewIPv4(net.ParseIP("192.168.0.1"))
	require.NoError(t, err)
	v6, err := addr.NewIPv6(net.ParseIP("2001:db8::2"))
	require.NoError(t, err)

	require.NoError(t, r.Set(Peer{Identity: []byte("a"), Address: v4, LastSeen: time.Now()}))
	require.NoError(t, r.Set(Peer{Identity: []byte("b"), Address: v6, LastSeen: time.Now()}))

	peers, err := r.List()
	require.NoError(t, err)
	assert.Len(t, peers, 2)
}

func TestSetOverwritesExistingPeer(t *testing.T) {
	r := openTest(t)
	v4, err := addr.NewIPv4(net.ParseIP("1.1.1.1"))
	require.NoError(t, err)
	v6, err := addr.NewIPv6(net.ParseIP("::1"))
	require.NoError(t, err)

	require.NoError(t, r.Set(Peer{Identity: []byte("node"), Address: v4, LastSeen: time.Now()}))
	require.NoError(t, r.Set(Peer{Identity: []byte("node"), Address: v6, LastSeen: time.Now()}))

	got, ok, err := r.Get([]byte("node"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, addr.TagIPv6, got.Address.Tag())
}
