package addr

import (
	"encoding/base32"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/sha3"
)

// onionEncoding is the unpadded, lower-case base32 alphabet Tor onion
// addresses use. Grounded on golang.org/x/crypto (carried by the pack's
// backkem-matter module) for the v3 checksum; base32 itself has no
// dedicated onion-address library in the retrieved pack, so it is built
// directly on the standard library's encoding/base32.
var onionEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const (
	torV3Version    = 0x03
	torV3ChecksumN  = 2
	torV2OnionChars = 16
	torV3OnionChars = 56 // base32(32+2+1 bytes) without padding
)

// String renders the canonical text form of a, per spec §6.3.
func (a Address) String() string {
	switch a.tag {
	case TagIPv4:
		ip, _ := a.ToIPv4()
		return ip.String()
	case TagIPv6:
		ip, _ := a.ToIPv6()
		return ip.String()
	case TagTorV2:
		return strings.ToLower(onionEncoding.EncodeToString(a.torV2[:])) + ".onion"
	case TagTorV3:
		return torV3OnionText(a.torV3) + ".onion"
	default:
		return "<invalid-address>"
	}
}

func torV3OnionText(pub [torV3Len]byte) string {
	sum := torV3Checksum(pub)
	buf := make([]byte, 0, torV3Len+torV3ChecksumN+1)
	buf = append(buf, pub[:]...)
	buf = append(buf, sum[:]...)
	buf = append(buf, torV3Version)
	return strings.ToLower(onionEncoding.EncodeToString(buf))
}

// torV3Checksum implements the Tor v3 onion service checksum:
// SHA3-256(".onion checksum" || pubkey || version)[:2].
func torV3Checksum(pub [torV3Len]byte) [torV3ChecksumN]byte {
	h := sha3.New256()
	h.Write([]byte(".onion checksum"))
	h.Write(pub[:])
	h.Write([]byte{torV3Version})
	sum := h.Sum(nil)
	var out [torV3ChecksumN]byte
	copy(out[:], sum[:torV3ChecksumN])
	return out
}

// ParseAddress parses the canonical text form of an address: dotted IPv4,
// colon-hex IPv6, or a `*.onion` Tor address (v2 or v3, by length). Per
// spec §6.3, a string that parses as more than one family simultaneously
// is rejected rather than silently picking one.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)

	var matches []Address

	if ip := net.ParseIP(s); ip != nil {
		if v4 := ip.To4(); v4 != nil && !strings.Contains(s, ":") {
			a, err := NewIPv4(v4)
			if err == nil {
				matches = append(matches, a)
			}
		} else if v6 := ip.To16(); v6 != nil {
			a, err := NewIPv6(v6)
			if err == nil {
				matches = append(matches, a)
			}
		}
	}

	if strings.HasSuffix(strings.ToLower(s), ".onion") {
		label := s[:len(s)-len(".onion")]
		if a, err := parseOnion(label); err == nil {
			matches = append(matches, a)
		} else if !TorEnabled {
			return Address{}, fmt.Errorf("addr: tor addresses are not supported; enable addr.TorEnabled")
		}
	}

	switch len(matches) {
	case 0:
		return Address{}, fmt.Errorf("addr: can't recognize IPv4, IPv6 or Tor onion address in %q", s)
	case 1:
		return matches[0], nil
	default:
		return Address{}, fmt.Errorf("addr: %q is ambiguous between multiple address families", s)
	}
}

func parseOnion(label string) (Address, error) {
	if !TorEnabled {
		return Address{}, fmt.Errorf("addr: tor support disabled")
	}
	raw, err := onionEncoding.DecodeString(strings.ToUpper(label))
	if err != nil {
		return Address{}, fmt.Errorf("addr: invalid onion base32 encoding: %w", err)
	}
	switch len(raw) {
	case torV2Len:
		var b [torV2Len]byte
		copy(b[:], raw)
		return NewTorV2(b)
	case torV3Len + torV3ChecksumN + 1:
		var pub [torV3Len]byte
		copy(pub[:], raw[:torV3Len])
		version := raw[torV3Len+torV3ChecksumN]
		if version != torV3Version {
			return Address{}, fmt.Errorf("addr: unsupported onion version %d", version)
		}
		var gotSum [torV3ChecksumN]byte
		copy(gotSum[:], raw[torV3Len:torV3Len+torV3ChecksumN])
		if gotSum != torV3Checksum(pub) {
			return Address{}, fmt.Errorf("addr: onion v3 checksum mismatch")
		}
		return NewTorV3(pub)
	default:
		return Address{}, fmt.Errorf("addr: wrong onion address length %d", len(raw))
	}
}
