// Package bus implements the ESB controller: a single-threaded cooperative
// event loop that owns a set of router sockets (one per bus), demultiplexes
// inbound routed frames, dispatches local traffic to a user handler, and
// forwards everything else verbatim.
package bus

import "context"

// Handler is the user-supplied callback object a Controller owns for the
// lifetime of its run loop. B is the bus identifier type; A is the address
// (service identity) type the handler's requests and errors are expressed
// over.
//
// Handle is invoked once per locally-destined frame, with request already
// decoded by the Controller's Codec. The Senders value passed in is a
// bounded lease: it is valid only for the duration of this call and must
// not be retained past it (Go has no borrow checker to enforce this, so it
// is a documented convention, not a compiler-checked one).
//
// HandleErr is invoked for every recoverable fault the run loop or a
// Senders call surfaces. Returning a non-nil error from HandleErr is the
// only way to stop Run; any other return value keeps the loop going.
type Handler[B comparable, A any] interface {
	Handle(ctx context.Context, senders *Senders[B], bus B, src A, request any) error
	HandleErr(ctx context.Context, err error) error
}

// Codec is the request/reply encode/decode capability spec.md treats as
// external (§1: "serialization of request payloads ... supplied by the
// user"). The Controller holds exactly one instance, shared across all
// buses (spec §3). Implementations must be able to tell a malformed body
// from a valid one without panicking; internal/codec ships a concrete
// msgpack-based default.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(body []byte) (any, error)
}
