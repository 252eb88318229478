package addr

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// SocketAddrUniformLen is the fixed width of SocketAddress.Encode's output:
// the Address uniform encoding plus a 2-byte big-endian port.
const SocketAddrUniformLen = UniformLen + 2

// SocketAddress pairs an Address with a 16-bit port, independent of any
// transport-level protocol (spec §3).
type SocketAddress struct {
	Address Address
	Port    uint16
}

// Encode produces the fixed-width uniform encoding: Address.Encode()
// followed by the 2-byte big-endian port.
func (s SocketAddress) Encode() [SocketAddrUniformLen]byte {
	var out [SocketAddrUniformLen]byte
	enc := s.Address.Encode()
	copy(out[:UniformLen], enc[:])
	binary.BigEndian.PutUint16(out[UniformLen:], s.Port)
	return out
}

// DecodeSocketAddress is the inverse of SocketAddress.Encode.
func DecodeSocketAddress(b []byte) (SocketAddress, error) {
	if len(b) != SocketAddrUniformLen {
		return SocketAddress{}, fmt.Errorf("addr: socket uniform encoding must be %d bytes, got %d", SocketAddrUniformLen, len(b))
	}
	a, err := Decode(b[:UniformLen])
	if err != nil {
		return SocketAddress{}, err
	}
	return SocketAddress{Address: a, Port: binary.BigEndian.Uint16(b[UniformLen:])}, nil
}

func (s SocketAddress) String() string {
	return fmt.Sprintf("%s:%d", s.Address.String(), s.Port)
}

// Transport is the closed enum of transport-level protocols an
// ExtendedSocketAddress may name (spec §3).
type Transport byte

const (
	TransportTCP  Transport = 1
	TransportUDP  Transport = 2
	TransportMTCP Transport = 3
	TransportQUIC Transport = 4
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	case TransportMTCP:
		return "mtcp"
	case TransportQUIC:
		return "quic"
	default:
		return ""
	}
}

func parseTransport(s string) (Transport, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return TransportTCP, nil
	case "udp":
		return TransportUDP, nil
	case "mtcp":
		return TransportMTCP, nil
	case "quic":
		return TransportQUIC, nil
	default:
		return 0, fmt.Errorf("addr: unknown transport protocol %q", s)
	}
}

// ExtSocketAddrUniformLen is the fixed width of
// ExtendedSocketAddress.Encode's output: a 1-byte transport tag followed
// by the socket address uniform encoding.
const ExtSocketAddrUniformLen = SocketAddrUniformLen + 1

// ExtendedSocketAddress adds a transport tag to a SocketAddress (spec §3).
type ExtendedSocketAddress struct {
	Transport Transport
	Socket    SocketAddress
}

// Encode produces the fixed-width uniform encoding: the transport tag byte
// followed by SocketAddress.Encode().
func (e ExtendedSocketAddress) Encode() [ExtSocketAddrUniformLen]byte {
	var out [ExtSocketAddrUniformLen]byte
	out[0] = byte(e.Transport)
	sock := e.Socket.Encode()
	copy(out[1:], sock[:])
	return out
}

// DecodeExtendedSocketAddress is the inverse of
// ExtendedSocketAddress.Encode. An unrecognized transport tag fails.
func DecodeExtendedSocketAddress(b []byte) (ExtendedSocketAddress, error) {
	if len(b) != ExtSocketAddrUniformLen {
		return ExtendedSocketAddress{}, fmt.Errorf("addr: extended socket uniform encoding must be %d bytes, got %d", ExtSocketAddrUniformLen, len(b))
	}
	t := Transport(b[0])
	switch t {
	case TransportTCP, TransportUDP, TransportMTCP, TransportQUIC:
	default:
		return ExtendedSocketAddress{}, fmt.Errorf("addr: unknown transport tag %d", b[0])
	}
	sock, err := DecodeSocketAddress(b[1:])
	if err != nil {
		return ExtendedSocketAddress{}, err
	}
	return ExtendedSocketAddress{Transport: t, Socket: sock}, nil
}

func (e ExtendedSocketAddress) String() string {
	return fmt.Sprintf("%s://%s", e.Transport.String(), e.Socket.String())
}

// ParseSocketAddress parses "<addr>:<port>", "[<ipv6>]:<port>", or a bare
// address (port defaults to 0), per spec §6.3.
func ParseSocketAddress(s string) (SocketAddress, error) {
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return SocketAddress{}, fmt.Errorf("addr: malformed bracketed socket address %q", s)
		}
		addrPart := s[1:end]
		rest := s[end+1:]
		port := uint16(0)
		if strings.HasPrefix(rest, ":") {
			p, err := parsePort(rest[1:])
			if err != nil {
				return SocketAddress{}, err
			}
			port = p
		} else if rest != "" {
			return SocketAddress{}, fmt.Errorf("addr: malformed socket address %q", s)
		}
		a, err := ParseAddress(addrPart)
		if err != nil {
			return SocketAddress{}, err
		}
		return SocketAddress{Address: a, Port: port}, nil
	}

	if idx := strings.LastIndex(s, ":"); idx >= 0 && strings.Count(s, ":") == 1 {
		addrPart, portPart := s[:idx], s[idx+1:]
		port, err := parsePort(portPart)
		if err != nil {
			return SocketAddress{}, err
		}
		a, err := ParseAddress(addrPart)
		if err != nil {
			return SocketAddress{}, err
		}
		return SocketAddress{Address: a, Port: port}, nil
	}

	a, err := ParseAddress(s)
	if err != nil {
		return SocketAddress{}, err
	}
	return SocketAddress{Address: a, Port: 0}, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("addr: wrong port number %q: %w", s, err)
	}
	return uint16(n), nil
}

// ParseExtendedSocketAddress parses "<transport>://<addr>:<port>"; the
// transport name is case-insensitive on input (spec §6.3).
func ParseExtendedSocketAddress(s string) (ExtendedSocketAddress, error) {
	parts := strings.SplitN(s, "://", 2)
	if len(parts) != 2 {
		return ExtendedSocketAddress{}, fmt.Errorf("addr: malformed extended socket address %q, expected <transport>://<addr>:<port>", s)
	}
	t, err := parseTransport(parts[0])
	if err != nil {
		return ExtendedSocketAddress{}, err
	}
	sock, err := ParseSocketAddress(parts[1])
	if err != nil {
		return ExtendedSocketAddress{}, err
	}
	return ExtendedSocketAddress{Transport: t, Socket: sock}, nil
}
