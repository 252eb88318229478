package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingMsg struct {
	Text string
}

type pongMsg struct {
	Count int
}

func newTestCodec() *Msgpack {
	c := New()
	c.Register(1, pingMsg{}, func() any { return new(pingMsg) })
	c.Register(2, pongMsg{}, func() any { return new(pongMsg) })
	return c
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	c := newTestCodec()

	body, err := c.Marshal(pingMsg{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, Tag(1), Tag(body[0]))

	got, err := c.Unmarshal(body)
	require.NoError(t, err)
	ping, ok := got.(*pingMsg)
	require.True(t, ok)
	assert.Equal(t, "hi", ping.Text)
}

func TestMarshalUnregisteredTypeFails(t *testing.T) {
	c := newTestCodec()
	_, err := c.Marshal(struct{ X int }{X: 1})
	assert.Error(t, err)
}

func TestUnmarshalEmptyBodyFails(t *testing.T) {
	c := newTestCodec()
	_, err := c.Unmarshal(nil)
	assert.Error(t, err)
}

func TestUnmarshalUnknownTagFails(t *testing.T) {
	c := newTestCodec()
	_, err := c.Unmarshal([]byte{9, 1, 2, 3})
	assert.Error(t, err)
}

func TestUnmarshalMalformedPayloadFails(t *testing.T) {
	c := newTestCodec()
	_, err := c.Unmarshal([]byte{1, 0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestDistinctTagsDoNotCollide(t *testing.T) {
	c := newTestCodec()

	pingBody, err := c.Marshal(pingMsg{Text: "a"})
	require.NoError(t, err)
	pongBody, err := c.Marshal(pongMsg{Count: 7})
	require.NoError(t, err)

	gotPing, err := c.Unmarshal(pingBody)
	require.NoError(t, err)
	gotPong, err := c.Unmarshal(pongBody)
	require.NoError(t, err)

	assert.IsType(t, &pingMsg{}, gotPing)
	assert.IsType(t, &pongMsg{}, gotPong)
	assert.Equal(t, 7, gotPong.(*pongMsg).Count)
}
