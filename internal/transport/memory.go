package transport

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/tenzoki/esbus/internal/idgen"
)

// frameSink is anything a memoryBus can route a RoutedFrame to: a
// MemoryRouter (identity-addressed, many peers) or a memoryClient
// (single-shot, addressed by its own generated identity). Routing through
// one interface lets client sockets receive replies the same way router
// peers receive forwarded frames, instead of a dead-end channel nothing
// ever writes to.
type frameSink interface {
	deliver(ctx context.Context, f RoutedFrame) error
}

// MemoryNetwork is the shared registry an in-process test or demo wires its
// sockets through: every MemoryDialer built from the same *MemoryNetwork
// can route frames to every other socket registered on it, keyed by
// (locator, identity) — locator plays the role a real transport's listen
// address would, grouping sockets into one virtual bus.
type MemoryNetwork struct {
	mu    sync.Mutex
	buses map[string]*memoryBus
}

// NewMemoryNetwork returns an empty in-process network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{buses: make(map[string]*memoryBus)}
}

func (n *MemoryNetwork) bus(locator string) *memoryBus {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.buses[locator]
	if !ok {
		b = &memoryBus{peers: make(map[string]frameSink)}
		n.buses[locator] = b
	}
	return b
}

type memoryBus struct {
	mu    sync.Mutex
	peers map[string]frameSink
}

func (b *memoryBus) register(identity []byte, sink frameSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[string(identity)] = sink
}

func (b *memoryBus) unregister(identity []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.peers, string(identity))
}

func (b *memoryBus) lookup(identity []byte) (frameSink, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.peers[string(identity)]
	return r, ok
}

// MemoryDialer implements Dialer over a *MemoryNetwork. It is the transport
// the ESB's own controller tests (S1-S5 in spec §8) run against.
type MemoryDialer struct {
	Network *MemoryNetwork
}

func NewMemoryDialer(network *MemoryNetwork) *MemoryDialer {
	if network == nil {
		network = NewMemoryNetwork()
	}
	return &MemoryDialer{Network: network}
}

func (d *MemoryDialer) OpenRouter(_ context.Context, locator string, identity []byte, _ Role) (RouterSocket, error) {
	bus := d.Network.bus(locator)
	r := &MemoryRouter{
		bus:      bus,
		identity: append([]byte(nil), identity...),
		inbox:    make(chan RoutedFrame, 64),
		closed:   make(chan struct{}),
	}
	bus.register(r.identity, r)
	return r, nil
}

func (d *MemoryDialer) OpenClient(_ context.Context, locator string) (ClientSocket, error) {
	bus := d.Network.bus(locator)
	c := &memoryClient{bus: bus, identity: idgen.Identity(), inbox: make(chan []byte, 1)}
	bus.register(c.identity, c)
	return c, nil
}

// MemoryRouter is the in-process RouterSocket: sending writes directly into
// the destination's inbox channel, so there is no network delay to
// simulate and no serialization step — the body is passed by reference.
type MemoryRouter struct {
	bus      *memoryBus
	identity []byte
	inbox    chan RoutedFrame

	mu        sync.Mutex
	mandatory bool
	stashed   []RoutedFrame
	closed    chan struct{}
	closeOnce sync.Once
}

// stash keeps a frame MemoryPoller already pulled off inbox so a later
// RecvRouted still sees it, preserving the contract that Poll only
// observes readiness.
func (r *MemoryRouter) stash(f RoutedFrame) {
	r.mu.Lock()
	r.stashed = append(r.stashed, f)
	r.mu.Unlock()
}

func (r *MemoryRouter) popStashed() (RoutedFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stashed) == 0 {
		return RoutedFrame{}, false
	}
	f := r.stashed[0]
	r.stashed = r.stashed[1:]
	return f, true
}

func (r *MemoryRouter) Identity() []byte { return r.identity }

func (r *MemoryRouter) SetMandatoryRouting(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mandatory = enabled
	return nil
}

func (r *MemoryRouter) SendRouted(ctx context.Context, dst []byte, body []byte) error {
	peer, ok := r.bus.lookup(dst)
	if !ok {
		r.mu.Lock()
		mandatory := r.mandatory
		r.mu.Unlock()
		if mandatory {
			return ErrUnreachable
		}
		return nil // non-mandatory: drop silently, per spec §4.1 default behavior
	}
	frame := RoutedFrame{Src: r.identity, Dst: dst, Body: body}
	return peer.deliver(ctx, frame)
}

// deliver implements frameSink for MemoryRouter: push f onto inbox, or
// report ErrUnreachable/ctx.Err if that is not possible.
func (r *MemoryRouter) deliver(ctx context.Context, f RoutedFrame) error {
	select {
	case r.inbox <- f:
		return nil
	case <-r.closed:
		return ErrUnreachable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *MemoryRouter) RecvRouted(ctx context.Context) (RoutedFrame, error) {
	if f, ok := r.popStashed(); ok {
		return f, nil
	}
	select {
	case f := <-r.inbox:
		return f, nil
	case <-r.closed:
		return RoutedFrame{}, ErrClosed
	case <-ctx.Done():
		return RoutedFrame{}, ctx.Err()
	}
}

func (r *MemoryRouter) PollHandle() any { return (<-chan RoutedFrame)(r.inbox) }

func (r *MemoryRouter) Close() error {
	r.closeOnce.Do(func() {
		r.bus.unregister(r.identity)
		close(r.closed)
	})
	return nil
}

// memoryClient is the in-process ClientSocket counterpart, used by
// public/rpcclient's tests. It registers under its own generated identity
// so a MemoryRouter playing the RPC server can reply to it the same way it
// would forward to any other peer: by addressing the identity the request
// arrived from.
type memoryClient struct {
	bus      *memoryBus
	identity []byte
	inbox    chan []byte
}

func (c *memoryClient) SendRaw(ctx context.Context, body []byte) error {
	// The in-process client has no single fixed peer; tests route raw
	// sends through a well-known "server" identity registered on the bus.
	peer, ok := c.bus.lookup([]byte("server"))
	if !ok {
		return ErrUnreachable
	}
	return peer.deliver(ctx, RoutedFrame{Src: c.identity, Dst: []byte("server"), Body: body})
}

// deliver implements frameSink for memoryClient: a reply addressed to this
// client's identity lands in inbox for RecvRaw to pick up.
func (c *memoryClient) deliver(ctx context.Context, f RoutedFrame) error {
	select {
	case c.inbox <- f.Body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *memoryClient) RecvRaw(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.inbox:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *memoryClient) Close() error {
	c.bus.unregister(c.identity)
	return nil
}

// MemoryPoller implements Poller over any Pollable whose PollHandle is a
// <-chan RoutedFrame — both MemoryRouter and TCPRouter qualify, so it is
// the default Poller for either transport. It uses reflect.Select because
// the channel set is built dynamically from whatever buses the caller
// passes in — the same shape zmq.poll's heterogeneous pollitem array has,
// adapted to Go's statically-typed channels.
type MemoryPoller struct{}

func (MemoryPoller) Poll(ctx context.Context, sockets []Pollable, timeout time.Duration) ([]bool, error) {
	if len(sockets) == 0 {
		return nil, nil
	}
	cases := make([]reflect.SelectCase, 0, len(sockets)+2)
	for _, s := range sockets {
		ch := s.PollHandle().(<-chan RoutedFrame)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
	}
	doneIdx := len(cases)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

	var timeoutIdx = -1
	if timeout >= 0 {
		timeoutIdx = len(cases)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(time.After(timeout))})
	}

	chosen, recv, recvOK := reflect.Select(cases)
	switch {
	case chosen == doneIdx:
		return nil, ctx.Err()
	case chosen == timeoutIdx:
		return make([]bool, len(sockets)), nil
	}

	ready := make([]bool, len(sockets))
	ready[chosen] = true
	if recvOK {
		stashFrame(sockets[chosen], recv.Interface().(RoutedFrame))
	}

	// Drain remaining channels non-blockingly to report any other
	// sockets that are simultaneously ready, matching spec §4.4's "ready
	// buses" being a set, not a single winner. Whatever is pulled off here
	// is stashed so the caller's subsequent RecvRouted still observes it.
	for i, s := range sockets {
		if ready[i] {
			continue
		}
		ch := s.PollHandle().(<-chan RoutedFrame)
		select {
		case f := <-ch:
			ready[i] = true
			stashFrame(s, f)
		default:
		}
	}
	return ready, nil
}

// frameStasher is implemented by every RoutedFrame-channel-based Pollable
// (MemoryRouter, TCPRouter) that MemoryPoller can drive: Poll only proves
// readiness, so whatever it pulls off a channel to do that must be handed
// back so the caller's next RecvRouted still observes it.
type frameStasher interface {
	stash(RoutedFrame)
}

func stashFrame(s Pollable, f RoutedFrame) {
	if r, ok := s.(frameStasher); ok {
		r.stash(f)
	}
}
