package bus

import (
	"context"
	"fmt"

	"github.com/tenzoki/esbus/internal/esberr"
	"github.com/tenzoki/esbus/internal/transport"
)

// Senders is the send-side façade passed by reference into Handler.Handle
// (spec §4.5). It lets the handler emit routed messages on any bus the
// Controller owns, without granting it the receive path or the poll loop:
// Senders never reads from a socket and never blocks on receive, though it
// may block on SendTo if the transport's send buffer is full.
type Senders[B comparable] struct {
	identity []byte
	codec    Codec
	sockets  map[B]transport.RouterSocket
}

func newSenders[B comparable](identity []byte, codec Codec, sockets map[B]transport.RouterSocket) *Senders[B] {
	return &Senders[B]{identity: identity, codec: codec, sockets: sockets}
}

// SendTo encodes request with the Controller's codec and routes it to dst
// on bus, using the Controller's identity as the frame source. It returns
// esberr.Error[[]byte]{Kind: UnknownBusId} if bus names a socket the
// Controller does not own, esberr.Error[[]byte]{Kind: Presentation} if
// encoding fails, and esberr.Error[[]byte]{Kind: Send} if the underlying
// transport send fails.
func (s *Senders[B]) SendTo(ctx context.Context, bus B, dst []byte, request any) error {
	sock, ok := s.sockets[bus]
	if !ok {
		return esberr.UnknownBus[[]byte](busString(bus))
	}
	body, err := s.codec.Marshal(request)
	if err != nil {
		return esberr.Presentation[[]byte](err)
	}
	if err := sock.SendRouted(ctx, dst, body); err != nil {
		return esberr.Send[[]byte](s.identity, dst, err)
	}
	return nil
}

// forwardRaw re-sends body unchanged to dst on bus, bypassing the codec.
// Only Controller.Run calls this, for the forwarding branch of §4.4's run
// loop: spec.md's S2 scenario requires the forwarded frame's body to be
// byte-identical to the one received, which a decode-then-re-encode round
// trip cannot generally guarantee for an arbitrary codec.
func (s *Senders[B]) forwardRaw(ctx context.Context, bus B, dst []byte, body []byte) error {
	sock, ok := s.sockets[bus]
	if !ok {
		return esberr.UnknownBus[[]byte](busString(bus))
	}
	if err := sock.SendRouted(ctx, dst, body); err != nil {
		return esberr.Send[[]byte](s.identity, dst, err)
	}
	return nil
}

func busString(bus any) string {
	return fmt.Sprintf("%v", bus)
}
