// Package rpc implements the request/reply layer:
// a per-endpoint client over request sockets, and a multi-endpoint
// server over reply sockets that converts handler errors into wire
// failures.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/meshwire/meshwire/bus"
	"github.com/meshwire/meshwire/failure"
	"github.com/meshwire/meshwire/internal/transport"
	"github.com/meshwire/meshwire/wire"
)

// UnknownEndpointError means the endpoint id was never registered.
type UnknownEndpointError[E any] struct{ Endpoint E }

func (e UnknownEndpointError[E]) Error() string {
	return fmt.Sprintf("rpc: unknown endpoint %v", e.Endpoint)
}

// TransportError wraps a session-level I/O or framing failure.
type TransportError struct{ Cause error }

func (e TransportError) Error() string { return fmt.Sprintf("rpc: transport: %v", e.Cause) }
func (e TransportError) Unwrap() error { return e.Cause }

// PresentationError wraps a decode/encode failure on a message.
type PresentationError struct{ Cause error }

func (e PresentationError) Error() string { return fmt.Sprintf("rpc: presentation: %v", e.Cause) }
func (e PresentationError) Unwrap() error { return e.Cause }

// ServerFailureError means the reply carried a structured application
// failure.
type ServerFailureError struct{ Failure failure.Failure }

func (e ServerFailureError) Error() string { return e.Failure.Error() }

// UnexpectedServerResponseError means the reply shape could not be used
// (e.g. an empty payload where a value was required).
type UnexpectedServerResponseError struct{}

func (UnexpectedServerResponseError) Error() string { return "rpc: unexpected server response" }

// FailureCarrier lets a reply type expose a structured failure variant,
// mirroring the wire protocol's Reply-or-Failure shape.
type FailureCarrier interface {
	AsFailure() (failure.Failure, bool)
}

// Client holds one request-role session per endpoint.
type Client[E comparable, Req any, Resp any] struct {
	sessions map[E]transport.Session
	codec    wire.Codec
}

// NewClient dials (or adopts) a request session for every entry in
// endpoints.
func NewClient[E comparable, Req any, Resp any](ctx context.Context, endpoints map[E]bus.Carrier, codec wire.Codec) (*Client[E, Req, Resp], error) {
	sessions := make(map[E]transport.Session, len(endpoints))
	for id, carrier := range endpoints {
		sess, err := openRequest(ctx, carrier)
		if err != nil {
			for _, s := range sessions {
				s.Close()
			}
			return nil, fmt.Errorf("rpc: dialing endpoint %v: %w", id, err)
		}
		sessions[id] = sess
	}
	return &Client[E, Req, Resp]{sessions: sessions, codec: codec}, nil
}

func openRequest(ctx context.Context, carrier bus.Carrier) (transport.Session, error) {
	if carrier.Socket != nil {
		return transport.AdoptP2P(transport.RoleRequest, carrier.Socket), nil
	}
	return transport.DialP2P(ctx, transport.RoleRequest, carrier.URI)
}

// Request performs a synchronous serialize -> send -> recv -> unmarshall
// round trip against endpoint.
func (c *Client[E, Req, Resp]) Request(ctx context.Context, endpoint E, req Req) (Resp, error) {
	var zero Resp
	sess, ok := c.sessions[endpoint]
	if !ok {
		return zero, UnknownEndpointError[E]{Endpoint: endpoint}
	}

	payload, err := c.codec.Serialize(req)
	if err != nil {
		return zero, PresentationError{Cause: err}
	}
	if err := sess.Send(ctx, wire.Frame{Payload: payload}); err != nil {
		return zero, TransportError{Cause: err}
	}

	select {
	case ev, open := <-sess.Events():
		if !open {
			return zero, TransportError{Cause: errors.New("session closed")}
		}
		if ev.Err != nil {
			return zero, TransportError{Cause: ev.Err}
		}
		if len(ev.Frame.Payload) == 0 {
			return zero, UnexpectedServerResponseError{}
		}
		var resp Resp
		if err := c.codec.Unmarshall(ev.Frame.Payload, &resp); err != nil {
			return zero, PresentationError{Cause: err}
		}
		if fc, ok := any(resp).(FailureCarrier); ok {
			if f, isFail := fc.AsFailure(); isFail {
				return zero, ServerFailureError{Failure: f}
			}
		}
		return resp, nil
	case <-ctx.Done():
		return zero, TransportError{Cause: ctx.Err()}
	}
}

// Close tears down every endpoint session.
func (c *Client[E, Req, Resp]) Close() error {
	var firstErr error
	for _, s := range c.sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
