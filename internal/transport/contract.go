// Package transport defines the abstract socket contract the ESB controller
// is built against (spec §4.1) plus two reference implementations: an
// in-process Memory transport used by the controller's own test suite, and
// a length-prefixed TCP transport grounded on the teacher's
// cellorg/internal/broker accept loop and cellorg/internal/client dial
// loop, generalized from line-delimited JSON-RPC to binary routed frames.
//
// Everything here is a collaborator contract: spec.md treats the transport
// as external, so this package owns no routing or dispatch logic of its
// own — that lives in public/bus.
package transport

import (
	"context"
	"fmt"
	"time"
)

// RoutedFrame is one message read from or written to a RouterSocket: an
// explicit source identity, destination identity, and opaque body (spec
// §6.1).
type RoutedFrame struct {
	Src  []byte
	Dst  []byte
	Body []byte
}

// ClientSocket is the unrouted half of the transport contract: strict
// request/reply alternation, one Recv per Send (spec §4.1).
type ClientSocket interface {
	SendRaw(ctx context.Context, body []byte) error
	RecvRaw(ctx context.Context) ([]byte, error)
	Close() error
}

// RouterSocket is the routed half of the transport contract. Identity is
// fixed at construction time and becomes the implicit source on every
// outgoing frame; src/dst on a received frame are recovered from the
// envelope the underlying transport carries (spec §4.1).
type RouterSocket interface {
	Identity() []byte
	SendRouted(ctx context.Context, dst []byte, body []byte) error
	RecvRouted(ctx context.Context) (RoutedFrame, error)

	// SetMandatoryRouting enables or disables the fail-fast-on-unreachable
	// behavior spec §4.1 requires the controller to enable on every bus.
	SetMandatoryRouting(enabled bool) error

	// Pollable exposes whatever the socket's Poller implementation needs
	// to test readiness without inspecting the socket's internals.
	Pollable

	Close() error
}

// Pollable is implemented by anything a Poller can wait on.
type Pollable interface {
	// PollHandle returns an opaque, implementation-specific readiness
	// handle (e.g. a channel, an fd). Poller implementations type-assert
	// it back to whatever concrete type they produced.
	PollHandle() any
}

// Poller blocks until at least one of sockets is readable (or erroring) or
// timeout elapses, returning one readiness bit per input socket in the
// same order. A negative timeout blocks indefinitely (spec §4.1); ctx
// cancellation is this Go port's substitute for that same "block forever
// until something external intervenes" contract (spec §5.3 notes the core
// has no cancellation token of its own — ctx fills that gap idiomatically
// without adding one to the core's vocabulary).
type Poller interface {
	Poll(ctx context.Context, sockets []Pollable, timeout time.Duration) ([]bool, error)
}

// Role selects whether a controller's sockets bind (Server) or connect
// (Client) when built from a Locator (spec §4.3). All buses of one
// controller share a Role.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Carrier is either a Locator to be opened by the controller, or an
// already-connected socket handle adopted as-is (spec §4.3, GLOSSARY
// "Carrier").
type Carrier struct {
	Locator string
	Socket  RouterSocket
}

// IsAdopted reports whether c wraps a pre-created socket rather than a
// locator to dial/bind.
func (c Carrier) IsAdopted() bool { return c.Socket != nil }

// Dialer opens RouterSocket and ClientSocket instances for a given
// transport implementation. internal/transport/tcp.go and
// internal/transport/memory.go each provide one.
type Dialer interface {
	// OpenRouter builds a router socket bound to (Role==RoleServer) or
	// connected to (Role==RoleClient) locator, with identity as its
	// implicit source.
	OpenRouter(ctx context.Context, locator string, identity []byte, role Role) (RouterSocket, error)

	// OpenClient builds a client socket connected to locator.
	OpenClient(ctx context.Context, locator string) (ClientSocket, error)
}

// ErrClosed is returned by RecvRouted on a router socket that has been
// Closed.
var ErrClosed = fmt.Errorf("transport: socket closed")

// ErrUnreachable is returned by SendRouted, under mandatory routing, when
// dst names no peer known to the transport (spec §4.1, "Mandatory
// routing").
var ErrUnreachable = fmt.Errorf("transport: destination unreachable")
