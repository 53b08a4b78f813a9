// Package address defines the value types carried in every routed frame:
// service addresses and client ids. An Address must be comparable so it
// can key endpoint tables and act as a map key for routing decisions.
package address

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Address is the constraint satisfied by every service-address type the
// framework can route on. ServiceName and ClientID both implement it.
type Address interface {
	comparable
	Bytes() []byte
	String() string
}

// ServiceName is a fixed 32-byte UTF-8 service identifier. Strings longer
// than 32 bytes are truncated; shorter strings are zero-padded.
type ServiceName [32]byte

// FromString builds a ServiceName from s, truncating to the first 32
// bytes or zero-padding on the right. Oversized input is truncated using
// only the first 32 bytes of s, never bytes beyond that window.
func FromString(s string) ServiceName {
	var n ServiceName
	b := []byte(s)
	if len(b) > len(n) {
		b = b[:len(n)]
	}
	copy(n[:], b)
	return n
}

// Bytes returns the raw 32-byte buffer.
func (n ServiceName) Bytes() []byte {
	return n[:]
}

// String renders the name as lossy UTF-8, truncated at the first NUL byte.
func (n ServiceName) String() string {
	if i := indexNUL(n[:]); i >= 0 {
		return string(n[:i])
	}
	return string(n[:])
}

// DisplayAlt renders the alternate form: first and last 4 bytes in
// lowercase hex, separated by "..".
func (n ServiceName) DisplayAlt() string {
	return fmt.Sprintf("%x..%x", n[:4], n[len(n)-4:])
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// IsZero reports whether the name has never been assigned.
func (n ServiceName) IsZero() bool {
	for _, c := range n {
		if c != 0 {
			return false
		}
	}
	return true
}

// FromBytes rebuilds a ServiceName from its 32-byte wire form.
func FromBytes(b []byte) (ServiceName, error) {
	var n ServiceName
	if len(b) != len(n) {
		return n, fmt.Errorf("address: service name requires %d bytes, got %d", len(n), len(b))
	}
	copy(n[:], b)
	return n, nil
}

// Codec reconstructs an address value of type A from its wire bytes, as
// produced by Address.Bytes. The ESB controller and RPC layers use it to
// decode the source field of an inbound frame.
type Codec[A Address] interface {
	FromBytes(b []byte) (A, error)
}

// ServiceNameCodec implements Codec[ServiceName].
type ServiceNameCodec struct{}

// FromBytes implements Codec.
func (ServiceNameCodec) FromBytes(b []byte) (ServiceName, error) { return FromBytes(b) }

// ClientIDCodec implements Codec[ClientID].
type ClientIDCodec struct{}

// FromBytes implements Codec.
func (ClientIDCodec) FromBytes(b []byte) (ClientID, error) { return ClientIDFromBytes(b) }

// ClientID is an opaque 64-bit client identifier.
type ClientID uint64

// Bytes returns the big-endian encoding of the id.
func (c ClientID) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(c))
	return b[:]
}

// String renders the id as a base-16 string without a leading prefix.
func (c ClientID) String() string {
	return strings.ToLower(fmt.Sprintf("%x", uint64(c)))
}

// ClientIDFromBytes decodes a big-endian 8-byte buffer into a ClientID.
func ClientIDFromBytes(b []byte) (ClientID, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("address: client id requires 8 bytes, got %d", len(b))
	}
	return ClientID(binary.BigEndian.Uint64(b)), nil
}

// NewClientID generates a fresh, effectively-unique ClientID from a
// version-4 UUID's low 8 bytes, for a client that has no durable
// identity of its own (an ephemeral request/reply peer, a dealer socket
// freshly dialed in).
func NewClientID() ClientID {
	id := uuid.New()
	return ClientID(binary.BigEndian.Uint64(id[8:16]))
}
