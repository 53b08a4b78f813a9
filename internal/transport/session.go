// Package transport implements the bus-level carrier sessions: a
// pluggable "socket of the ZeroMQ family". No ZeroMQ client binding
// appears anywhere in the corpus this module was grounded on, so
// carriers are realized over net.Conn/TCP the way cellorg's own broker
// and broker-client already do it (internal/broker/service.go,
// internal/client/broker.go), generalized from cellorg's single JSON-RPC
// control channel to the eight socket roles bus.Config names.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/meshwire/meshwire/wire"
)

// Role is a session's socket role. Package bus re-exports it as
// bus.Role; bus imports transport, so transport does not import bus.
type Role int

const (
	RoleRequest Role = iota
	RoleReply
	RolePublish
	RoleSubscribe
	RolePush
	RolePull
	RoleRouter
	RoleDealer
)

func (r Role) String() string {
	switch r {
	case RoleRequest:
		return "request"
	case RoleReply:
		return "reply"
	case RolePublish:
		return "publish"
	case RoleSubscribe:
		return "subscribe"
	case RolePush:
		return "push"
	case RolePull:
		return "pull"
	case RoleRouter:
		return "router"
	case RoleDealer:
		return "dealer"
	default:
		return "unknown"
	}
}

// State is the per-session lifecycle state
type State int

const (
	StateFresh State = iota
	StateConnected
	StateActive
)

// Event is pushed onto a receive-capable session's channel by its
// background reader.
type Event struct {
	Frame wire.Frame
	Err   error
}

// Session is a live carrier for one bus. Send-only roles (push, publish)
// return a nil channel from Events; receive-only roles (pull, subscribe)
// return ErrSendNotSupported from Send.
type Session interface {
	Role() Role
	State() State
	// Events delivers inbound frames/errors for receive-capable roles.
	// Returns nil for roles that never receive.
	Events() <-chan Event
	Send(ctx context.Context, f wire.Frame) error
	SetIdentity(id []byte) error
	Identity() []byte
	// SetMandatory configures queued==false semantics: Send must fail
	// immediately, rather than block/queue, when no peer is reachable.
	SetMandatory(mandatory bool)
	// Subscribe installs a prefix filter; only meaningful for subscribe
	// role sessions. Empty topic matches everything.
	Subscribe(topic []byte) error
	Close() error
}

// ErrSendNotSupported is returned by Send on a receive-only session.
var ErrSendNotSupported = fmt.Errorf("transport: session role does not support send")

// ErrRecvNotSupported marks a session that never produces Events.
var ErrRecvNotSupported = fmt.Errorf("transport: session role does not support receive")

// ErrNoPeer is returned by a mandatory (queued==false) session when no
// peer is currently reachable.
var ErrNoPeer = fmt.Errorf("transport: no reachable peer")

const dialTimeout = 5 * time.Second
