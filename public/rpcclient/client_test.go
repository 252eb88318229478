package rpcclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/esbus/internal/codec"
	"github.com/tenzoki/esbus/internal/esberr"
	"github.com/tenzoki/esbus/internal/transport"
)

type req struct{ Text string }
type reply struct{ Text string }

const (
	reqTag   codec.Tag = 1
	replyTag codec.Tag = 2
)

func newRPCCodec() *codec.Msgpack {
	c := codec.New()
	c.Register(reqTag, req{}, func() any { return new(req) })
	c.Register(replyTag, reply{}, func() any { return new(reply) })
	return c
}

// serveOnce reads one request off server and writes back a reply carrying
// the request text with "!" appended, acting as the remote endpoint a
// Client talks to.
func serveOnce(t *testing.T, ctx context.Context, server transport.RouterSocket, c *codec.Msgpack) {
	t.Helper()
	frame, err := server.RecvRouted(ctx)
	require.NoError(t, err)
	decoded, err := c.Unmarshal(frame.Body)
	require.NoError(t, err)
	r := decoded.(*req)
	body, err := c.Marshal(reply{Text: r.Text + "!"})
	require.NoError(t, err)
	require.NoError(t, server.SendRouted(ctx, frame.Src, body))
}

func TestRequestRoundTrip(t *testing.T) {
	ctx := context.Background()
	network := transport.NewMemoryNetwork()
	dialer := transport.NewMemoryDialer(network)

	server, err := dialer.OpenRouter(ctx, "rpc", []byte("server"), transport.RoleServer)
	require.NoError(t, err)
	defer server.Close()

	c := newRPCCodec()
	client, err := Init[string](ctx, dialer, c, map[string]string{"svc": "rpc"})
	require.NoError(t, err)
	defer client.Close()

	done := make(chan struct{})
	go func() { defer close(done); serveOnce(t, ctx, server, c) }()

	got, err := client.Request(ctx, "svc", req{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, &reply{Text: "hi!"}, got)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server goroutine did not finish")
	}
}

func TestRequestUnknownEndpoint(t *testing.T) {
	ctx := context.Background()
	dialer := transport.NewMemoryDialer(nil)
	client, err := Init[string](ctx, dialer, newRPCCodec(), map[string]string{})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Request(ctx, "nope", req{Text: "x"})
	var esb *esberr.Error[string]
	require.True(t, errors.As(err, &esb))
	assert.Equal(t, esberr.KindUnknownBus, esb.Kind)
}

func TestRequestEncodeFailure(t *testing.T) {
	ctx := context.Background()
	network := transport.NewMemoryNetwork()
	dialer := transport.NewMemoryDialer(network)

	server, err := dialer.OpenRouter(ctx, "rpc", []byte("server"), transport.RoleServer)
	require.NoError(t, err)
	defer server.Close()

	client, err := Init[string](ctx, dialer, newRPCCodec(), map[string]string{"svc": "rpc"})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Request(ctx, "svc", struct{ X int }{X: 1})
	var esb *esberr.Error[string]
	require.True(t, errors.As(err, &esb))
	assert.Equal(t, esberr.KindPresentation, esb.Kind)
}

func TestRequestDecodeFailureOnReply(t *testing.T) {
	ctx := context.Background()
	network := transport.NewMemoryNetwork()
	dialer := transport.NewMemoryDialer(network)

	server, err := dialer.OpenRouter(ctx, "rpc", []byte("server"), transport.RoleServer)
	require.NoError(t, err)
	defer server.Close()

	c := newRPCCodec()
	client, err := Init[string](ctx, dialer, c, map[string]string{"svc": "rpc"})
	require.NoError(t, err)
	defer client.Close()

	go func() {
		frame, err := server.RecvRouted(ctx)
		require.NoError(t, err)
		_ = server.SendRouted(ctx, frame.Src, []byte{0xff, 0xff})
	}()

	_, err = client.Request(ctx, "svc", req{Text: "hi"})
	var esb *esberr.Error[string]
	require.True(t, errors.As(err, &esb))
	assert.Equal(t, esberr.KindPresentation, esb.Kind)
}
