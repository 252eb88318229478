package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tenzoki/esbus/internal/esberr"
	"github.com/tenzoki/esbus/internal/transport"
)

// State is one of the Controller's three lifecycle states (spec §4.6).
// Transitions are linear: Constructed -> Polling <-> Servicing. There is no
// terminal Closed state in the core; teardown is by dropping the
// Controller, which drops all sockets.
type State int

const (
	Constructed State = iota
	Polling
	Servicing
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Polling:
		return "polling"
	case Servicing:
		return "servicing"
	default:
		return "unknown"
	}
}

// Controller is the ESB event loop (spec §4.3-§4.7). B is the bus
// identifier type; H is the handler's concrete type.
type Controller[B comparable, H Handler[B, []byte]] struct {
	identity       []byte
	routerIdentity []byte
	handler        H
	codec          Codec
	poller         transport.Poller

	buses   []B // stable iteration order, sorted by sortBuses
	sockets map[B]transport.RouterSocket
	senders *Senders[B]

	state State
}

// New constructs a Controller with one router socket per entry in
// busConfig. Each Carrier is either a locator (opened and bound or
// connected per role, depending on whether role is RoleServer or
// RoleClient) or an adopted, already-connected socket handle (spec §4.3).
// Locator-built sockets have SetMandatoryRouting(true) and their identity
// set to identity. routerIdentity is recorded and returned by
// RouterIdentity; no socket, send or forward path uses it.
func New[B comparable, H Handler[B, []byte]](
	ctx context.Context,
	identity []byte,
	busConfig map[B]transport.Carrier,
	routerIdentity []byte,
	handler H,
	role transport.Role,
	dialer transport.Dialer,
	codec Codec,
	poller transport.Poller,
) (*Controller[B, H], error) {
	sockets := make(map[B]transport.RouterSocket, len(busConfig))
	buses := make([]B, 0, len(busConfig))
	for id, carrier := range busConfig {
		buses = append(buses, id)
		if carrier.IsAdopted() {
			sockets[id] = carrier.Socket
			continue
		}
		sock, err := dialer.OpenRouter(ctx, carrier.Locator, identity, role)
		if err != nil {
			closeAll(sockets)
			return nil, esberr.Transport[[]byte](fmt.Errorf("bus %v: %w", id, err))
		}
		if err := sock.SetMandatoryRouting(true); err != nil {
			closeAll(sockets)
			return nil, esberr.Transport[[]byte](fmt.Errorf("bus %v: %w", id, err))
		}
		sockets[id] = sock
	}
	sortBuses(buses)

	c := &Controller[B, H]{
		identity:       append([]byte(nil), identity...),
		routerIdentity: append([]byte(nil), routerIdentity...),
		handler:        handler,
		codec:          codec,
		poller:         poller,
		buses:          buses,
		sockets:        sockets,
	}
	c.senders = newSenders[B](c.identity, codec, sockets)
	return c, nil
}

func closeAll[B comparable](sockets map[B]transport.RouterSocket) {
	for _, s := range sockets {
		_ = s.Close()
	}
}

// sortBuses gives the poll loop a deterministic iteration order. Bus
// identifiers need only be comparable for map use; a best-effort String
// sort keeps test output and forwarding order reproducible without
// requiring B to implement any ordering interface.
func sortBuses[B comparable](buses []B) {
	sort.Slice(buses, func(i, j int) bool {
		return fmt.Sprintf("%v", buses[i]) < fmt.Sprintf("%v", buses[j])
	})
}

// Identity returns the controller's own service identity.
func (c *Controller[B, H]) Identity() []byte { return c.identity }

// RouterIdentity returns the default forwarding peer recorded at
// construction (spec §4.3).
func (c *Controller[B, H]) RouterIdentity() []byte { return c.routerIdentity }

// State reports the controller's current lifecycle state (spec §4.6).
func (c *Controller[B, H]) State() State { return c.state }

// Close releases every bus socket the controller owns. Drop order is
// handler, Senders (which drops its sockets), unmarshaller — in this port,
// Senders and the codec carry no resources of their own, so Close only
// needs to close sockets (spec §5.4).
func (c *Controller[B, H]) Close() error {
	var firstErr error
	for _, s := range c.sockets {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run is the blocking event loop (spec §4.4). It iterates until handler's
// HandleErr returns a non-nil error, or ctx is canceled.
func (c *Controller[B, H]) Run(ctx context.Context) error {
	pollables := make([]transport.Pollable, len(c.buses))
	for i, id := range c.buses {
		pollables[i] = c.sockets[id]
	}

	for {
		c.state = Polling
		ready, err := c.poller.Poll(ctx, pollables, -1)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := c.recover(ctx, esberr.Transport[[]byte](err)); err != nil {
				return err
			}
			continue
		}

		if err := c.drainReady(ctx, ready); err != nil {
			return err
		}
	}
}

// drainReady processes exactly one frame from each ready bus, in poll
// order, per spec §4.4's drainage rule. Every fault is handed to HandleErr:
// if it returns nil the drain goes on with the next ready bus, so each bus
// Poll reported ready still gets its frame this cycle; if it returns a
// non-nil error the drain stops and that error ends Run.
func (c *Controller[B, H]) drainReady(ctx context.Context, ready []bool) error {
	c.state = Servicing
	for i, isReady := range ready {
		if !isReady {
			continue
		}
		id := c.buses[i]
		if err := c.serviceOne(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller[B, H]) serviceOne(ctx context.Context, bus B) error {
	sock := c.sockets[bus]
	frame, err := sock.RecvRouted(ctx)
	if err != nil {
		return c.recover(ctx, esberr.Transport[[]byte](err))
	}

	// Locality is decided on dst alone, before any attempt to decode the
	// body: a frame addressed elsewhere is forwarded byte-identical
	// regardless of whether this controller's codec could even parse it.
	if !bytesEqual(frame.Dst, c.identity) {
		if err := c.senders.forwardRaw(ctx, bus, frame.Dst, frame.Body); err != nil {
			return c.recover(ctx, err)
		}
		return nil
	}

	request, err := c.codec.Unmarshal(frame.Body)
	if err != nil {
		return c.recover(ctx, esberr.Presentation[[]byte](err))
	}

	if err := c.handler.Handle(ctx, c.senders, bus, frame.Src, request); err != nil {
		return c.recover(ctx, toESBErr(err))
	}
	return nil
}

// recover feeds err to the handler's HandleErr (spec §4.7): only a
// non-nil return from HandleErr propagates and terminates Run.
func (c *Controller[B, H]) recover(ctx context.Context, err error) error {
	return c.handler.HandleErr(ctx, err)
}

// toESBErr converts a handler-reported error into the ESB error type (spec
// §4.7): "the handler's own error type is convertible to the ESB error".
// An error already shaped as *esberr.Error[[]byte] passes through; anything
// else is wrapped as an opaque ServiceError.
func toESBErr(err error) error {
	var e *esberr.Error[[]byte]
	if errors.As(err, &e) {
		return e
	}
	return esberr.Service[[]byte](err.Error())
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
