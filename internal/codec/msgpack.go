// Package codec implements a concrete request/reply encode/decode
// capability for the ESB, built on github.com/vmihailenco/msgpack/v5 the
// same way tenzoki/agen/omni uses msgpack for its own wire format. Both
// public/bus.Codec and public/rpcclient.Codec are satisfied by *Msgpack.
package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Tag identifies the Go type a body was encoded from, so Unmarshal can
// reconstruct a concrete value instead of returning a generic map. Callers
// register their request/reply types by tag at construction time.
type Tag byte

// Msgpack encodes every value as a one-byte leading Tag followed by the
// msgpack encoding of the payload, giving the Unmarshaller in spec.md §4.3
// a real, importable default: "bodies ... must be self-describing enough
// for the unmarshaller to recover the type tag from the leading bytes"
// (spec §6.1).
type Msgpack struct {
	byTag  map[Tag]func() any
	tagsOf map[string]Tag // concrete Go type name -> tag, set at registration
}

// New returns an empty codec. Register every request/reply type before use.
func New() *Msgpack {
	return &Msgpack{
		byTag:  make(map[Tag]func() any),
		tagsOf: make(map[string]Tag),
	}
}

// Register associates tag with a Go type: sample (e.g. PingRequest{}) is
// used only to look up the tag on Marshal; newValue (e.g.
// func() any { return new(PingRequest) }) produces a fresh decode target
// for Unmarshal.
func (m *Msgpack) Register(tag Tag, sample any, newValue func() any) {
	m.byTag[tag] = newValue
	m.tagsOf[typeName(sample)] = tag
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

// Marshal writes the registered tag for v's type followed by v's msgpack
// encoding. Returns an error if v's type was never registered.
func (m *Msgpack) Marshal(v any) ([]byte, error) {
	tag, ok := m.tagsOf[typeName(v)]
	if !ok {
		return nil, fmt.Errorf("codec: type %T not registered", v)
	}
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal %T: %w", v, err)
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(tag))
	out = append(out, payload...)
	return out, nil
}

// Unmarshal reads the leading tag byte and decodes the remainder into a
// fresh value of the registered type. newValue must return a pointer
// (msgpack needs an addressable target); Unmarshal returns that same
// pointer. Returns an error for an empty body, an unregistered tag, or a
// msgpack decode failure.
func (m *Msgpack) Unmarshal(body []byte) (any, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("codec: empty body")
	}
	tag := Tag(body[0])
	newValue, ok := m.byTag[tag]
	if !ok {
		return nil, fmt.Errorf("codec: unknown type tag %d", tag)
	}
	v := newValue()
	if err := msgpack.Unmarshal(body[1:], v); err != nil {
		return nil, fmt.Errorf("codec: unmarshal tag %d: %w", tag, err)
	}
	return v, nil
}
