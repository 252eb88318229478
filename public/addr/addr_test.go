package addr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	v4, err := NewIPv4(net.ParseIP("127.0.0.1"))
	require.NoError(t, err)

	v6, err := NewIPv6(net.ParseIP("2001:db8::1"))
	require.NoError(t, err)

	var tv2raw [10]byte
	copy(tv2raw[:], []byte("onionv2raw"))
	torv2, err := NewTorV2(tv2raw)
	require.NoError(t, err)

	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	torv3, err := NewTorV3(key)
	require.NoError(t, err)

	for _, a := range []Address{v4, v6, torv2, torv3} {
		enc := a.Encode()
		got, err := Decode(enc[:])
		require.NoError(t, err)
		assert.True(t, a.Equal(got))
	}
}

func TestEncodingWidths(t *testing.T) {
	v4, err := NewIPv4(net.ParseIP("10.0.0.1"))
	require.NoError(t, err)

	assert.Equal(t, 33, UniformLen)
	enc := v4.Encode()
	assert.Len(t, enc, UniformLen)

	sock := SocketAddress{Address: v4, Port: 8080}
	assert.Len(t, sock.Encode(), SocketAddrUniformLen)
	assert.Equal(t, 35, SocketAddrUniformLen)

	ext := ExtendedSocketAddress{Transport: TransportTCP, Socket: sock}
	assert.Len(t, ext.Encode(), ExtSocketAddrUniformLen)
	assert.Equal(t, 36, ExtSocketAddrUniformLen)
}

func TestS6UniformEncodingCorners(t *testing.T) {
	v4, err := NewIPv4(net.ParseIP("127.0.0.1"))
	require.NoError(t, err)
	enc := v4.Encode()
	assert.Equal(t, byte(0), enc[0])
	assert.Equal(t, []byte{0x7f, 0x00, 0x00, 0x01}, enc[UniformLen-4:])

	var key [32]byte
	for i := range key {
		key[i] = byte(i + 1)
	}
	torv3, err := NewTorV3(key)
	require.NoError(t, err)
	enc = torv3.Encode()
	assert.Equal(t, byte(3), enc[0])
	assert.Equal(t, key[:], enc[1:])
}

func TestTagDiscrimination(t *testing.T) {
	v4, _ := NewIPv4(net.ParseIP("0.0.0.0"))
	v6, _ := NewIPv6(net.ParseIP("::"))
	assert.NotEqual(t, v4.Encode(), v6.Encode())
	assert.Equal(t, byte(0), v4.Encode()[0])
	assert.Equal(t, byte(1), v6.Encode()[0])
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := Decode(make([]byte, UniformLen-1))
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	buf := make([]byte, UniformLen)
	buf[0] = 9
	_, err := Decode(buf)
	assert.Error(t, err)
}

func TestParseTextForms(t *testing.T) {
	a, err := ParseAddress("127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, TagIPv4, a.Tag())
	assert.Equal(t, "127.0.0.1", a.String())

	b, err := ParseAddress("2001:db8::1")
	require.NoError(t, err)
	assert.Equal(t, TagIPv6, b.Tag())
}

func TestParseUnrecognizedInputRejected(t *testing.T) {
	_, err := ParseAddress("not-a-valid-anything")
	assert.Error(t, err)
}

func TestTorV3TextRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(200 + i)
	}
	a, err := NewTorV3(key)
	require.NoError(t, err)

	text := a.String()
	assert.Regexp(t, `^[a-z2-7]+\.onion$`, text)

	parsed, err := ParseAddress(text)
	require.NoError(t, err)
	assert.True(t, a.Equal(parsed))
}

func TestTorDisabledRejectsConstruction(t *testing.T) {
	old := TorEnabled
	TorEnabled = false
	defer func() { TorEnabled = old }()

	var raw [10]byte
	_, err := NewTorV2(raw)
	assert.Error(t, err)
}

func TestSocketAddressParsing(t *testing.T) {
	sa, err := ParseSocketAddress("192.168.1.1:9090")
	require.NoError(t, err)
	assert.Equal(t, uint16(9090), sa.Port)

	sa6, err := ParseSocketAddress("[2001:db8::1]:443")
	require.NoError(t, err)
	assert.Equal(t, uint16(443), sa6.Port)
	assert.Equal(t, TagIPv6, sa6.Address.Tag())
}

func TestExtendedSocketAddressParsing(t *testing.T) {
	ext, err := ParseExtendedSocketAddress("TCP://127.0.0.1:80")
	require.NoError(t, err)
	assert.Equal(t, TransportTCP, ext.Transport)
	assert.Equal(t, "tcp://127.0.0.1:80", ext.String())
}

func TestToIPv4NeverReturnsMapped(t *testing.T) {
	v4, err := NewIPv4(net.ParseIP("203.0.113.9"))
	require.NoError(t, err)
	ip, ok := v4.ToIPv4()
	require.True(t, ok)
	assert.NotNil(t, ip.To4())

	ip6, ok := v4.ToIPv6()
	require.True(t, ok)
	assert.Equal(t, "::ffff:203.0.113.9", ip6.String())
}
