// Package endpoint implements the endpoint table: a map from bus id to a
// live session plus its routing policy, with uniform send_to and
// set_identity operations.
package endpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshwire/meshwire/address"
	"github.com/meshwire/meshwire/bus"
	"github.com/meshwire/meshwire/internal/transport"
	"github.com/meshwire/meshwire/wire"
)

// UnknownBusIDError is returned when an operation names a bus id not
// present in the table.
type UnknownBusIDError[B any] struct {
	Bus B
}

func (e UnknownBusIDError[B]) Error() string {
	return fmt.Sprintf("endpoint: unknown bus id %v", e.Bus)
}

// SendError wraps a transport failure with routing context.
type SendError[A any] struct {
	Source A
	Dest   A
	Cause  error
}

func (e SendError[A]) Error() string {
	return fmt.Sprintf("endpoint: send from %v to %v: %v", e.Source, e.Dest, e.Cause)
}

func (e SendError[A]) Unwrap() error { return e.Cause }

// Table maps bus id B to a live endpoint for address type A. Every bus
// id present has exactly one live session; endpoints are created when a
// bus is added and destroyed when the table is closed.
type Table[B comparable, A address.Address] struct {
	mu       sync.RWMutex
	order    []B
	sessions map[B]transport.Session
	configs  map[B]bus.Config[A]
}

// New builds an empty endpoint table.
func New[B comparable, A address.Address]() *Table[B, A] {
	return &Table[B, A]{
		sessions: make(map[B]transport.Session),
		configs:  make(map[B]bus.Config[A]),
	}
}

// Add opens a session for cfg and registers it under id. identity is the
// local service address the session is configured with; callers (the
// ESB controller) are responsible for router self-loop normalization
// before calling Add.
func (t *Table[B, A]) Add(ctx context.Context, id B, cfg bus.Config[A], identity A) error {
	sess, err := open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("endpoint: opening bus %v: %w", id, err)
	}
	if err := sess.SetIdentity(identity.Bytes()); err != nil {
		sess.Close()
		return fmt.Errorf("endpoint: setting identity on bus %v: %w", id, err)
	}
	sess.SetMandatory(!cfg.Queued)
	if cfg.Role == bus.RoleSubscribe {
		if err := sess.Subscribe([]byte(cfg.Topic)); err != nil {
			sess.Close()
			return fmt.Errorf("endpoint: subscribing bus %v: %w", id, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[id]; !exists {
		t.order = append(t.order, id)
	} else {
		t.sessions[id].Close()
	}
	t.sessions[id] = sess
	t.configs[id] = cfg
	return nil
}

func open[A address.Address](ctx context.Context, cfg bus.Config[A]) (transport.Session, error) {
	if cfg.Carrier.Socket != nil {
		return transport.AdoptP2P(cfg.Role, cfg.Carrier.Socket), nil
	}
	addr := cfg.Carrier.URI
	switch cfg.Role {
	case bus.RoleRequest, bus.RolePush, bus.RoleDealer:
		return transport.DialP2P(ctx, cfg.Role, addr)
	case bus.RoleReply, bus.RolePull:
		return transport.ListenP2P(ctx, cfg.Role, addr)
	case bus.RoleRouter:
		return transport.ListenRouter(ctx, addr)
	case bus.RolePublish:
		return transport.ListenPub(ctx, addr)
	case bus.RoleSubscribe:
		return transport.DialSub(ctx, addr)
	default:
		return nil, fmt.Errorf("endpoint: unsupported socket role %v", cfg.Role)
	}
}

// SendTo serializes request with codec, computes the outer hop per the
// routing decision table, and sends a routed frame
// (source, via, dest, bytes).
func (t *Table[B, A]) SendTo(ctx context.Context, id B, source, dest A, codec wire.Codec, request any) error {
	t.mu.RLock()
	sess, ok := t.sessions[id]
	cfg := t.configs[id]
	t.mu.RUnlock()
	if !ok {
		return UnknownBusIDError[B]{Bus: id}
	}

	payload, err := codec.Serialize(request)
	if err != nil {
		return fmt.Errorf("endpoint: serializing request for bus %v: %w", id, err)
	}

	via := dest
	if cfg.Router != nil && *cfg.Router != source {
		via = *cfg.Router
	}

	frame := wire.Frame{Src: source.Bytes(), Via: via.Bytes(), Dst: dest.Bytes(), Payload: payload}
	if err := sess.Send(ctx, frame); err != nil {
		return SendError[A]{Source: source, Dest: dest, Cause: err}
	}
	return nil
}

// SendRaw sends an already-serialized payload as a routed frame, with
// the same next-hop choice as SendTo but without calling a codec.
func (t *Table[B, A]) SendRaw(ctx context.Context, id B, source, dest A, payload []byte) error {
	t.mu.RLock()
	sess, ok := t.sessions[id]
	cfg := t.configs[id]
	t.mu.RUnlock()
	if !ok {
		return UnknownBusIDError[B]{Bus: id}
	}
	via := dest
	if cfg.Router != nil && *cfg.Router != source {
		via = *cfg.Router
	}
	frame := wire.Frame{Src: source.Bytes(), Via: via.Bytes(), Dst: dest.Bytes(), Payload: payload}
	if err := sess.Send(ctx, frame); err != nil {
		return SendError[A]{Source: source, Dest: dest, Cause: err}
	}
	return nil
}

// SetIdentity rewrites the session's local identity.
func (t *Table[B, A]) SetIdentity(id B, identity A) error {
	t.mu.RLock()
	sess, ok := t.sessions[id]
	t.mu.RUnlock()
	if !ok {
		return UnknownBusIDError[B]{Bus: id}
	}
	if err := sess.SetIdentity(identity.Bytes()); err != nil {
		return fmt.Errorf("endpoint: setting identity on bus %v: %w", id, err)
	}
	return nil
}

// Config returns the configuration registered for id.
func (t *Table[B, A]) Config(id B) (bus.Config[A], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cfg, ok := t.configs[id]
	return cfg, ok
}

// Snapshot returns the deterministic iteration order and the live
// session map, for the poll set.
func (t *Table[B, A]) Snapshot() ([]B, map[B]transport.Session) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	order := append([]B(nil), t.order...)
	sessions := make(map[B]transport.Session, len(t.sessions))
	for k, v := range t.sessions {
		sessions[k] = v
	}
	return order, sessions
}

// Close tears down every session in the table.
func (t *Table[B, A]) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, sess := range t.sessions {
		if err := sess.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.sessions = make(map[B]transport.Session)
	t.configs = make(map[B]bus.Config[A])
	t.order = nil
	return firstErr
}
