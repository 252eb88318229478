package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

// TCPDialer implements Dialer over plain TCP connections. It is grounded on
// the teacher's broker.Service accept loop and client.BrokerClient dial
// loop, generalized from a line-delimited JSON-RPC protocol to the length-
// prefixed binary RoutedFrame wire format below.
//
// Wire format, written by writeFrame and read by readFrame:
//
//	4 bytes  length (big-endian, covers everything that follows)
//	N bytes  body
//
// A router socket identifies its peer per TCP connection rather than per
// frame: immediately after dialing or accepting, both ends exchange a
// handshake frame carrying nothing but the sender's identity, and every
// later frame on that connection is attributed to whichever identity the
// handshake announced. This mirrors how a ROUTER socket learns a peer's
// identity once, at connect time, rather than re-trusting it on every
// message.
type TCPDialer struct {
	Debug bool
}

const maxFrameLen = 64 << 20 // 64MiB, generous upper bound against a corrupt length prefix

func writeFrame(w io.Writer, body []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("transport: frame length %d exceeds maximum %d", n, maxFrameLen)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// OpenRouter binds (RoleServer) or connects (RoleClient) a TCP router
// socket at locator, identified by identity on the wire.
func (d *TCPDialer) OpenRouter(ctx context.Context, locator string, identity []byte, role Role) (RouterSocket, error) {
	r := &TCPRouter{
		identity: append([]byte(nil), identity...),
		peers:    make(map[string]*tcpPeer),
		inbox:    make(chan RoutedFrame, 256),
		closed:   make(chan struct{}),
		debug:    d.Debug,
	}
	switch role {
	case RoleServer:
		ln, err := net.Listen("tcp", locator)
		if err != nil {
			return nil, fmt.Errorf("transport: listen %s: %w", locator, err)
		}
		r.listener = ln
		go r.acceptLoop()
	case RoleClient:
		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", locator)
		if err != nil {
			return nil, fmt.Errorf("transport: dial %s: %w", locator, err)
		}
		peerID, err := r.handshake(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		r.addPeer(peerID, conn)
	default:
		return nil, fmt.Errorf("transport: unknown role %v", role)
	}
	return r, nil
}

// OpenClient connects a plain request/reply socket to locator.
func (d *TCPDialer) OpenClient(ctx context.Context, locator string) (ClientSocket, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", locator)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", locator, err)
	}
	return &tcpClient{conn: conn, reader: bufio.NewReader(conn)}, nil
}

type tcpPeer struct {
	conn net.Conn
	w    *bufio.Writer
	mu   sync.Mutex
}

func (p *tcpPeer) send(body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := writeFrame(p.w, body); err != nil {
		return err
	}
	return p.w.Flush()
}

// TCPRouter is the TCP-backed RouterSocket. Every accepted or dialed
// connection is read by its own goroutine, which forwards decoded frames
// into inbox; SendRouted and RecvRouted never touch net.Conn directly.
type TCPRouter struct {
	identity []byte
	debug    bool

	listener net.Listener

	mu        sync.RWMutex
	peers     map[string]*tcpPeer
	mandatory bool
	stashed   []RoutedFrame

	inbox     chan RoutedFrame
	closed    chan struct{}
	closeOnce sync.Once
}

// stash and popStashed give TCPRouter the same MemoryPoller-compatible
// peek semantics as MemoryRouter: Poll only proves readiness by pulling a
// frame off inbox, so it must be handed back for RecvRouted to return.
func (r *TCPRouter) stash(f RoutedFrame) {
	r.mu.Lock()
	r.stashed = append(r.stashed, f)
	r.mu.Unlock()
}

func (r *TCPRouter) popStashed() (RoutedFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stashed) == 0 {
		return RoutedFrame{}, false
	}
	f := r.stashed[0]
	r.stashed = r.stashed[1:]
	return f, true
}

func (r *TCPRouter) Identity() []byte { return r.identity }

// Addr returns the listener's bound address, or nil for a client-role
// router. Useful when locator binds an ephemeral port (":0") and a caller
// needs to learn the real port afterward.
func (r *TCPRouter) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *TCPRouter) SetMandatoryRouting(enabled bool) error {
	r.mu.Lock()
	r.mandatory = enabled
	r.mu.Unlock()
	return nil
}

func (r *TCPRouter) acceptLoop() {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-r.closed:
				return
			default:
				if r.debug {
					log.Printf("transport: accept on %s: %v", r.listener.Addr(), err)
				}
				return
			}
		}
		go func() {
			peerID, err := r.handshake(conn)
			if err != nil {
				if r.debug {
					log.Printf("transport: handshake from %s: %v", conn.RemoteAddr(), err)
				}
				conn.Close()
				return
			}
			r.addPeer(peerID, conn)
		}()
	}
}

// handshake exchanges identity frames over conn and starts the reader
// goroutine that feeds r.inbox for the remainder of the connection's life.
// It returns the remote peer's announced identity.
func (r *TCPRouter) handshake(conn net.Conn) (string, error) {
	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)
	if err := writeFrame(bw, r.identity); err != nil {
		return "", fmt.Errorf("transport: handshake write: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("transport: handshake flush: %w", err)
	}
	peerIdentity, err := readFrame(br)
	if err != nil {
		return "", fmt.Errorf("transport: handshake read: %w", err)
	}
	go r.readLoop(string(peerIdentity), conn, br)
	return string(peerIdentity), nil
}

func (r *TCPRouter) addPeer(peerID string, conn net.Conn) {
	r.mu.Lock()
	r.peers[peerID] = &tcpPeer{conn: conn, w: bufio.NewWriter(conn)}
	r.mu.Unlock()
}

func (r *TCPRouter) removePeer(peerID string, conn net.Conn) {
	r.mu.Lock()
	if p, ok := r.peers[peerID]; ok && p.conn == conn {
		delete(r.peers, peerID)
	}
	r.mu.Unlock()
}

func (r *TCPRouter) readLoop(peerID string, conn net.Conn, br *bufio.Reader) {
	defer r.removePeer(peerID, conn)
	defer conn.Close()
	for {
		body, err := readFrame(br)
		if err != nil {
			if r.debug && err != io.EOF {
				log.Printf("transport: read from %s: %v", peerID, err)
			}
			return
		}
		frame := RoutedFrame{Src: []byte(peerID), Dst: r.identity, Body: body}
		select {
		case r.inbox <- frame:
		case <-r.closed:
			return
		}
	}
}

func (r *TCPRouter) SendRouted(ctx context.Context, dst []byte, body []byte) error {
	r.mu.RLock()
	p, ok := r.peers[string(dst)]
	mandatory := r.mandatory
	r.mu.RUnlock()
	if !ok {
		if mandatory {
			return ErrUnreachable
		}
		return nil
	}
	if err := p.send(body); err != nil {
		return fmt.Errorf("transport: send to %s: %w", dst, err)
	}
	return nil
}

func (r *TCPRouter) RecvRouted(ctx context.Context) (RoutedFrame, error) {
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

func (r *TCPRouter) PollHandle() any { return (<-chan RoutedFrame)(r.inbox) }

func (r *TCPRouter) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
		if r.listener != nil {
			r.listener.Close()
		}
		r.mu.Lock()
		for _, p := range r.peers {
			p.conn.Close()
		}
		r.mu.Unlock()
	})
	return nil
}

// tcpClient is the TCP-backed ClientSocket: a single connection with
// strict send/recv alternation, no identity handshake.
type tcpClient struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

func (c *tcpClient) SendRaw(ctx context.Context, body []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(dl)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	bw := bufio.NewWriter(c.conn)
	if err := writeFrame(bw, body); err != nil {
		return err
	}
	return bw.Flush()
}

func (c *tcpClient) RecvRaw(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(dl)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	return readFrame(c.reader)
}

func (c *tcpClient) Close() error { return c.conn.Close() }
