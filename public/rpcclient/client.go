// Package rpcclient implements the ESB's thin request/reply helper (spec
// §4.2): one client socket per user-defined endpoint tag, strict
// single-threaded request/reply alternation, no pipelining.
//
// spec.md §9 notes two RPC client implementations coexisting in the
// original source (one generic over an Api trait with its own transcoder,
// one narrower). This port ships exactly one, collapsing the Open Question
// in the direction spec.md recommends.
package rpcclient

import (
	"context"
	"fmt"

	"github.com/tenzoki/esbus/internal/esberr"
	"github.com/tenzoki/esbus/internal/transport"
)

// Codec is the request/reply encode/decode capability, matching
// public/bus.Codec's shape so callers can share one implementation (e.g.
// internal/codec.Msgpack) across both packages.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(body []byte) (any, error)
}

// Client holds one client socket per endpoint tag. It is strictly
// single-threaded and stateless between calls: concurrent use requires one
// Client per goroutine (spec §5.1).
type Client[T comparable] struct {
	codec     Codec
	endpoints map[T]transport.ClientSocket
}

// Init opens one client socket per endpoint in endpoints, via dialer.
func Init[T comparable](ctx context.Context, dialer transport.Dialer, codec Codec, endpoints map[T]string) (*Client[T], error) {
	sockets := make(map[T]transport.ClientSocket, len(endpoints))
	for tag, locator := range endpoints {
		sock, err := dialer.OpenClient(ctx, locator)
		if err != nil {
			for _, s := range sockets {
				_ = s.Close()
			}
			return nil, esberr.Transport[T](fmt.Errorf("endpoint %v: %w", tag, err))
		}
		sockets[tag] = sock
	}
	return &Client[T]{codec: codec, endpoints: sockets}, nil
}

// Request encodes req, sends it on the socket named by tag, blocks for the
// matching raw reply, decodes it, and returns it. Returns
// esberr.Error[T]{Kind: UnknownBusId} if tag is not in the endpoint map
// (spec.md's UnknownEndpoint, reusing the bus-id-not-owned kind since both
// describe "caller named a map key the component doesn't hold"),
// esberr.Error[T]{Kind: Presentation} on encode/decode failure, and
// esberr.Error[T]{Kind: Transport} on a socket-level send/recv failure.
func (c *Client[T]) Request(ctx context.Context, tag T, req any) (any, error) {
	sock, ok := c.endpoints[tag]
	if !ok {
		return nil, esberr.UnknownBus[T](fmt.Sprintf("%v", tag))
	}

	body, err := c.codec.Marshal(req)
	if err != nil {
		return nil, esberr.Presentation[T](err)
	}
	if err := sock.SendRaw(ctx, body); err != nil {
		return nil, esberr.Transport[T](err)
	}
	replyBody, err := sock.RecvRaw(ctx)
	if err != nil {
		return nil, esberr.Transport[T](err)
	}
	reply, err := c.codec.Unmarshal(replyBody)
	if err != nil {
		return nil, esberr.Presentation[T](err)
	}
	return reply, nil
}

// Close releases every endpoint socket.
func (c *Client[T]) Close() error {
	var firstErr error
	for _, s := range c.endpoints {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
