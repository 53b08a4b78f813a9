// Package esb implements the Enterprise Service Bus controller: a
// routable, multi-bus, typed-message dispatcher built on top of the
// endpoint table.
package esb

import (
	"context"
	"fmt"

	"github.com/meshwire/meshwire/address"
	"github.com/meshwire/meshwire/bus"
	"github.com/meshwire/meshwire/endpoint"
	"github.com/meshwire/meshwire/internal/audit"
	"github.com/meshwire/meshwire/internal/pollset"
	"github.com/meshwire/meshwire/wire"
)

// Handler reacts to inbound requests addressed to the controller's own
// identity and decides the fatality of transport errors observed during
// the run loop.
type Handler[B comparable, A address.Address, Req any] interface {
	// Identity is the controller's local service address, used as the
	// source of outbound sends and compared against each frame's dst.
	Identity() A
	// OnReady runs once, before RunLoop's first poll, with every bus
	// session already open. It lets a handler announce itself or seed
	// outbound state once endpoints exist, instead of racing RunLoop.
	OnReady(ep *endpoint.Table[B, A]) error
	// Handle processes one decoded request addressed to this controller.
	Handle(ep *endpoint.Table[B, A], busID B, source A, request Req) error
	// HandleErr reacts to a transport-level error observed while
	// polling. A non-nil return terminates RunLoop.
	HandleErr(busID B, err error) error
}

// Decoded is one fully-decoded inbound request, returned by RecvPoll for
// out-of-band dispatch.
type Decoded[B comparable, A address.Address, Req any] struct {
	Bus     B
	Source  A
	Dest    A
	Request Req
}

// Controller owns an endpoint table, a codec, and a handler, for the
// lifetime of the service it backs.
type Controller[B comparable, A address.Address, Req any] struct {
	ep      *endpoint.Table[B, A]
	codec   wire.Codec
	addrs   address.Codec[A]
	handler Handler[B, A, Req]
	poll    *pollset.AdaptivePoll
	audit   *audit.Log
}

// EnableAudit attaches a frame-history log: every frame RecvPoll
// successfully decodes is appended under its bus id's string form before
// being handed back. Diagnostic only — a failed append is swallowed
// rather than treated as a transport error, since the audit trail is
// never read back as a delivery guarantee.
func (c *Controller[B, A, Req]) EnableAudit(log *audit.Log) {
	c.audit = log
}

// New opens a session for every entry in configs (connecting the URI
// carrier or adopting a pre-existing socket), normalizes each bus's
// router against the handler's identity, and returns a ready controller.
func New[B comparable, A address.Address, Req any](
	ctx context.Context,
	configs map[B]bus.Config[A],
	codec wire.Codec,
	addrs address.Codec[A],
	handler Handler[B, A, Req],
) (*Controller[B, A, Req], error) {
	ep := endpoint.New[B, A]()
	identity := handler.Identity()
	for id, cfg := range configs {
		cfg = normalizeRouter(cfg, identity)
		if err := ep.Add(ctx, id, cfg, identity); err != nil {
			ep.Close()
			return nil, fmt.Errorf("esb: adding bus %v: %w", id, err)
		}
	}
	return &Controller[B, A, Req]{
		ep:      ep,
		codec:   codec,
		addrs:   addrs,
		handler: handler,
		poll:    pollset.NewAdaptivePoll(0, 0),
	}, nil
}

// normalizeRouter clears a router that points back at identity, to
// avoid a bus relaying frames to itself.
func normalizeRouter[A address.Address](cfg bus.Config[A], identity A) bus.Config[A] {
	if cfg.Router != nil && *cfg.Router == identity {
		cfg.Router = nil
	}
	return cfg
}

// SendTo is a convenience wrapper over the endpoint table's send_to,
// using the handler's identity as source.
func (c *Controller[B, A, Req]) SendTo(ctx context.Context, busID B, dest A, request Req) error {
	return c.ep.SendTo(ctx, busID, c.handler.Identity(), dest, c.codec, request)
}

// Endpoints exposes the underlying table, e.g. for RunLoop relays or
// tests that need to set identities post-construction.
func (c *Controller[B, A, Req]) Endpoints() *endpoint.Table[B, A] { return c.ep }

// Close tears down every bus session.
func (c *Controller[B, A, Req]) Close() error { return c.ep.Close() }

// RecvPoll performs one poll across all buses and returns every decoded
// (bus, source, request) tuple ready for out-of-band dispatch. Frames
// whose dst does not match the controller's identity are returned
// verbatim (not relayed) — RunLoop is the relaying entry point.
func (c *Controller[B, A, Req]) RecvPoll() ([]Decoded[B, A, Req], error) {
	order, sessions := c.ep.Snapshot()
	ready, err := pollset.Poll(order, sessions)
	if err != nil {
		return nil, err
	}
	out := make([]Decoded[B, A, Req], 0, len(ready))
	for _, r := range ready {
		if r.Event.Err != nil {
			if handleErr := c.handler.HandleErr(r.Bus, r.Event.Err); handleErr != nil {
				return out, handleErr
			}
			c.poll.Sleep()
			continue
		}
		c.poll.Reset()
		dec, err := c.decode(r.Bus, r.Event.Frame)
		if err != nil {
			if handleErr := c.handler.HandleErr(r.Bus, err); handleErr != nil {
				return out, handleErr
			}
			continue
		}
		if c.audit != nil {
			c.audit.Append(fmt.Sprintf("%v", r.Bus), r.Event.Frame)
		}
		out = append(out, dec)
	}
	return out, nil
}

func (c *Controller[B, A, Req]) decode(busID B, frame wire.Frame) (Decoded[B, A, Req], error) {
	var zero Decoded[B, A, Req]
	source, err := c.addrs.FromBytes(frame.Src)
	if err != nil {
		return zero, fmt.Errorf("esb: decoding source on bus %v: %w", busID, err)
	}
	dest, err := c.addrs.FromBytes(frame.Dst)
	if err != nil {
		return zero, fmt.Errorf("esb: decoding dest on bus %v: %w", busID, err)
	}
	var req Req
	if err := c.codec.Unmarshall(frame.Payload, &req); err != nil {
		return zero, fmt.Errorf("esb: decoding request on bus %v: %w", busID, err)
	}
	return Decoded[B, A, Req]{Bus: busID, Source: source, Dest: dest, Request: req}, nil
}

// RunLoop calls handler.OnReady once, then indefinitely polls every bus;
// for each ready bus it decodes the frame, and either dispatches to
// handler.Handle (dst == identity) or relays the decoded request onward
// via the endpoint table's SendTo, which serializes it again. It returns
// when OnReady fails, when HandleErr returns a non-nil (fatal) error,
// when a poll fails, or when ctx is done.
func (c *Controller[B, A, Req]) RunLoop(ctx context.Context) error {
	identity := c.handler.Identity()
	if err := c.handler.OnReady(c.ep); err != nil {
		return fmt.Errorf("esb: on ready: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		decoded, err := c.RecvPoll()
		if err != nil {
			return err
		}
		for _, d := range decoded {
			if d.Dest == identity {
				if err := c.handler.Handle(c.ep, d.Bus, d.Source, d.Request); err != nil {
					if handleErr := c.handler.HandleErr(d.Bus, err); handleErr != nil {
						return handleErr
					}
				}
				continue
			}
			if err := c.ep.SendTo(ctx, d.Bus, d.Source, d.Dest, c.codec, d.Request); err != nil {
				if handleErr := c.handler.HandleErr(d.Bus, err); handleErr != nil {
					return handleErr
				}
			}
		}
	}
}
