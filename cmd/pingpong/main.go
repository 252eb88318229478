// Command pingpong is a minimal demo of public/bus: a peer socket sends a
// Ping addressed to controller "A" on bus "X", and the controller's
// run loop dispatches it to a local handler (spec.md's S1 scenario). The
// whole demo runs in one process, wired over internal/transport's in-memory
// reference transport.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tenzoki/esbus/internal/codec"
	"github.com/tenzoki/esbus/internal/transport"
	"github.com/tenzoki/esbus/public/bus"
)

// Ping is the only request type this demo registers.
type Ping struct {
	Text string
}

const pingTag codec.Tag = 1

func newCodec() *codec.Msgpack {
	c := codec.New()
	c.Register(pingTag, Ping{}, func() any { return new(Ping) })
	return c
}

type echoHandler struct{}

func (echoHandler) Handle(ctx context.Context, senders *bus.Senders[string], busID string, src []byte, request any) error {
	ping, ok := request.(*Ping)
	if !ok {
		return fmt.Errorf("pingpong: unexpected request type %T", request)
	}
	fmt.Printf("A received from %s on %s: %q\n", src, busID, ping.Text)
	return nil
}

func (echoHandler) HandleErr(ctx context.Context, err error) error {
	log.Printf("pingpong: handler error: %v", err)
	return nil
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	network := transport.NewMemoryNetwork()
	dialer := transport.NewMemoryDialer(network)
	reqCodec := newCodec()

	busConfig := map[string]transport.Carrier{"X": {Locator: "demo"}}

	ctrl, err := bus.New[string, echoHandler](
		ctx, []byte("A"), busConfig, []byte("A"), echoHandler{}, transport.RoleServer, dialer, reqCodec, transport.MemoryPoller{},
	)
	if err != nil {
		log.Fatalf("pingpong: construct controller: %v", err)
	}
	defer ctrl.Close()

	peerSock, err := dialer.OpenRouter(ctx, "demo", []byte("P"), transport.RoleServer)
	if err != nil {
		log.Fatalf("pingpong: open peer socket: %v", err)
	}
	defer peerSock.Close()

	body, err := reqCodec.Marshal(Ping{Text: "hello from P"})
	if err != nil {
		log.Fatalf("pingpong: encode ping: %v", err)
	}
	if err := peerSock.SendRouted(ctx, []byte("A"), body); err != nil {
		log.Fatalf("pingpong: send ping: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil && err != context.DeadlineExceeded {
			log.Fatalf("pingpong: run loop: %v", err)
		}
	case <-ctx.Done():
	}
}
