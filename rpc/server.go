package rpc

import (
	"context"
	"fmt"

	"github.com/meshwire/meshwire/bus"
	"github.com/meshwire/meshwire/failure"
	"github.com/meshwire/meshwire/internal/pollset"
	"github.com/meshwire/meshwire/internal/transport"
	"github.com/meshwire/meshwire/wire"
)

// Handler reacts to one decoded request on a given endpoint, producing
// a reply value or an error, which the server converts into a
// structured failure reply.
type Handler[E comparable, Req any, Resp any] interface {
	Handle(endpoint E, req Req) (Resp, error)
	// HandleErr reacts to a transport-level error observed while
	// polling. A non-nil return terminates RunLoop.
	HandleErr(endpoint E, err error) error
}

// Server holds one reply-role session per endpoint and a handler that
// answers every request with exactly one reply.
type Server[E comparable, Req any, Resp any] struct {
	order    []E
	sessions map[E]transport.Session
	codec    wire.Codec
	handler  Handler[E, Req, Resp]
	// FromFailure builds a reply value carrying a structured failure,
	// used whenever Handle returns an error.
	fromFailure func(failure.Failure) Resp
}

// NewServer binds (or adopts) a reply session for every entry in
// endpoints.
func NewServer[E comparable, Req any, Resp any](
	ctx context.Context,
	endpoints map[E]bus.Carrier,
	codec wire.Codec,
	handler Handler[E, Req, Resp],
	fromFailure func(failure.Failure) Resp,
) (*Server[E, Req, Resp], error) {
	order := make([]E, 0, len(endpoints))
	sessions := make(map[E]transport.Session, len(endpoints))
	for id, carrier := range endpoints {
		sess, err := openReply(ctx, carrier)
		if err != nil {
			for _, s := range sessions {
				s.Close()
			}
			return nil, fmt.Errorf("rpc: binding endpoint %v: %w", id, err)
		}
		order = append(order, id)
		sessions[id] = sess
	}
	return &Server[E, Req, Resp]{
		order:       order,
		sessions:    sessions,
		codec:       codec,
		handler:     handler,
		fromFailure: fromFailure,
	}, nil
}

func openReply(ctx context.Context, carrier bus.Carrier) (transport.Session, error) {
	if carrier.Socket != nil {
		return transport.AdoptP2P(transport.RoleReply, carrier.Socket), nil
	}
	return transport.ListenP2P(ctx, transport.RoleReply, carrier.URI)
}

// RunLoop polls every endpoint; for each ready one it decodes exactly
// one request, invokes the handler, and sends exactly one reply,
// regardless of whether the handler succeeded.
func (s *Server[E, Req, Resp]) RunLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ready, err := pollset.Poll(s.order, s.sessions)
		if err != nil {
			return err
		}
		for _, r := range ready {
			if r.Event.Err != nil {
				if herr := s.handler.HandleErr(r.Bus, r.Event.Err); herr != nil {
					return herr
				}
				continue
			}
			if err := s.serveOne(ctx, r.Bus, r.Event.Frame); err != nil {
				if herr := s.handler.HandleErr(r.Bus, err); herr != nil {
					return herr
				}
			}
		}
	}
}

func (s *Server[E, Req, Resp]) serveOne(ctx context.Context, id E, frame wire.Frame) error {
	sess := s.sessions[id]

	var req Req
	if err := s.codec.Unmarshall(frame.Payload, &req); err != nil {
		return s.reply(ctx, sess, id, s.fromFailure(failure.New(failure.Presentation, err.Error())))
	}

	resp, err := s.handler.Handle(id, req)
	if err != nil {
		return s.reply(ctx, sess, id, s.fromFailure(failure.FromError(err)))
	}
	return s.reply(ctx, sess, id, resp)
}

func (s *Server[E, Req, Resp]) reply(ctx context.Context, sess transport.Session, id E, resp Resp) error {
	payload, err := s.codec.Serialize(resp)
	if err != nil {
		return fmt.Errorf("rpc: serializing reply for endpoint %v: %w", id, err)
	}
	if err := sess.Send(ctx, wire.Frame{Payload: payload}); err != nil {
		return fmt.Errorf("rpc: sending reply for endpoint %v: %w", id, err)
	}
	return nil
}

// Close tears down every endpoint session.
func (s *Server[E, Req, Resp]) Close() error {
	var firstErr error
	for _, sess := range s.sessions {
		if err := sess.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
