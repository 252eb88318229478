// Command esbd runs a single ESB node from a YAML bus configuration: it
// opens one TCP router socket per configured bus, logs every locally
// dispatched request and every recoverable fault to a session log, and
// forwards everything else. It is a thin driver over public/bus, grounded
// on the teacher's cellorg orchestrator main for its config-file-or-default
// loading strategy and signal-driven shutdown.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tenzoki/esbus/internal/codec"
	"github.com/tenzoki/esbus/internal/config"
	"github.com/tenzoki/esbus/internal/idgen"
	"github.com/tenzoki/esbus/internal/logging"
	"github.com/tenzoki/esbus/internal/registry"
	"github.com/tenzoki/esbus/internal/transport"
	"github.com/tenzoki/esbus/public/bus"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <config.yaml>", os.Args[0])
	}
	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatalf("esbd: %v", err)
	}

	sessionLog, err := logging.New(cfg.Log.Dir, cfg.Log.Quiet)
	if err != nil {
		log.Fatalf("esbd: %v", err)
	}
	defer sessionLog.Close()
	logging.SetGlobalLogger(sessionLog)

	peers, err := registry.Open(cfg.Registry.Dir)
	if err != nil {
		log.Fatalf("esbd: %v", err)
	}
	defer peers.Close()

	role, err := cfg.TransportRole()
	if err != nil {
		log.Fatalf("esbd: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	busConfig := make(map[string]transport.Carrier, len(cfg.Buses))
	for id, locator := range cfg.Locators() {
		busConfig[id] = transport.Carrier{Locator: locator}
	}

	identity := []byte(cfg.Identity)
	if len(identity) == 0 {
		identity = idgen.Identity()
	}

	dialer := &transport.TCPDialer{Debug: cfg.Debug}
	reqCodec := defaultCodec()
	handler := &loggingHandler{log: sessionLog}

	ctrl, err := bus.New[string, *loggingHandler](
		ctx, identity, busConfig, identity, handler, role, dialer, reqCodec, transport.MemoryPoller{},
	)
	if err != nil {
		log.Fatalf("esbd: %v", err)
	}
	defer ctrl.Close()

	sessionLog.Info("esbd starting: identity=%s role=%s buses=%d", cfg.Identity, cfg.Role, len(cfg.Buses))

	if err := ctrl.Run(ctx); err != nil {
		sessionLog.Error("run loop terminated: %v", err)
		os.Exit(1)
	}
	sessionLog.Info("esbd shut down cleanly")
}

// loggingHandler is esbd's default Handler: it records every dispatched
// request and every recoverable fault to the session log without acting on
// either. A real deployment supplies its own Handler; this exists so esbd
// is runnable out of the box and so the session logger in internal/logging
// has a caller.
type loggingHandler struct {
	log *logging.SessionLogger
}

func (h *loggingHandler) Handle(ctx context.Context, senders *bus.Senders[string], busID string, src []byte, request any) error {
	h.log.LogFrame(busID, string(src), "<local>", 0)
	h.log.Debug("dispatched request on bus %s from %s: %#v", busID, src, request)
	return nil
}

func (h *loggingHandler) HandleErr(ctx context.Context, err error) error {
	h.log.LogHandlerErr(err)
	return nil
}

// defaultCodec returns an empty codec with no registered request types.
// esbd is a runnable skeleton, not a complete service: a real deployment
// forks this file (or builds its own main around public/bus.New) and
// registers its request/reply types with codec.Register before Run.
func defaultCodec() *codec.Msgpack {
	return codec.New()
}
