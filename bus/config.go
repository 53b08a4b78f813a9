// Package bus describes the immutable configuration of a single bus:
// transport carrier, socket role, optional router, queueing policy, and
// subscription topic.
package bus

import (
	"net"

	"github.com/meshwire/meshwire/address"
	"github.com/meshwire/meshwire/internal/transport"
)

// Role is the socket role a bus session opens.
type Role = transport.Role

const (
	RoleRequest   = transport.RoleRequest
	RoleReply     = transport.RoleReply
	RolePublish   = transport.RolePublish
	RoleSubscribe = transport.RoleSubscribe
	RolePush      = transport.RolePush
	RolePull      = transport.RolePull
	RoleRouter    = transport.RoleRouter
	RoleDealer    = transport.RoleDealer
)

// Carrier names either an endpoint URI (the controller dials/binds it)
// or a pre-constructed socket handle the controller adopts as-is.
type Carrier struct {
	URI    string
	Socket net.Conn
}

// Config is an immutable descriptor for one bus.
type Config[A address.Address] struct {
	Role    Role
	Carrier Carrier
	// Router, when set, is the service address outbound frames on this
	// bus are relayed to instead of their nominal destination.
	Router *A
	// Queued, when false, means an absent peer must fail the send
	// immediately rather than queue silently.
	Queued bool
	// Topic is the subscription filter; only meaningful for RoleSubscribe.
	// Empty matches everything.
	Topic string
}
