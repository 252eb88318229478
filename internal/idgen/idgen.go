// Package idgen mints default service identities and RPC correlation IDs
// when a caller does not supply its own, using github.com/google/uuid —
// the same library cellorg/internal/envelope uses for envelope IDs.
package idgen

import "github.com/google/uuid"

// Identity returns a fresh random identity suitable as an ESB service
// identity when the caller has no stable identity of its own to use.
func Identity() []byte {
	id := uuid.New()
	return []byte(id.String())
}

// CorrelationID returns a fresh random string suitable for tagging one
// request/reply exchange in logs, independent of any particular bus or
// endpoint tag.
func CorrelationID() string {
	return uuid.New().String()
}
