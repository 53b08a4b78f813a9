package peer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/flynn/noise"
)

// FramedSession is a framed, private transport between two peers:
// send/recv of whole messages, plus the peer's static identity.
type FramedSession interface {
	Send(ctx context.Context, payload []byte) error
	Recv(ctx context.Context) ([]byte, error)
	RemoteStatic() []byte
	Close() error
}

type noiseFramedSession struct {
	conn   net.Conn
	noise  *Noise
	remote []byte
}

// DialNoise connects to addr and runs the initiator side of the
// Noise_XX handshake using localKey as this peer's static identity.
func DialNoise(ctx context.Context, addr string, localKey noise.DHKey) (FramedSession, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("peer: dial %s: %w", addr, err)
	}
	nh, err := NewNoiseInitiator(localKey)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := handshakeOverConn(conn, nh, true); err != nil {
		conn.Close()
		return nil, err
	}
	return &noiseFramedSession{conn: conn, noise: nh, remote: append([]byte(nil), nh.RemoteStatic()...)}, nil
}

// AcceptNoise runs the responder side of the handshake over an
// already-accepted connection.
func AcceptNoise(conn net.Conn, localKey noise.DHKey) (FramedSession, error) {
	nh, err := NewNoiseResponder(localKey)
	if err != nil {
		return nil, err
	}
	if err := handshakeOverConn(conn, nh, false); err != nil {
		return nil, err
	}
	return &noiseFramedSession{conn: conn, noise: nh, remote: append([]byte(nil), nh.RemoteStatic()...)}, nil
}

// handshakeOverConn drives the 3-message Noise_XX exchange: -> e /
// <- e, ee, s, es / -> s, se. Messages are carried over conn with a
// plain 2-byte length prefix; they are not yet encrypted under the
// session cipher (Noise encrypts its own handshake payloads internally
// once keys are available).
func handshakeOverConn(conn net.Conn, nh *Noise, initiator bool) error {
	if initiator {
		m1, err := nh.WriteMessage(nil)
		if err != nil {
			return fmt.Errorf("peer: handshake write 1: %w", err)
		}
		if err := writeHandshakeMsg(conn, m1); err != nil {
			return err
		}
		m2, err := readHandshakeMsg(conn)
		if err != nil {
			return err
		}
		if _, err := nh.ReadMessage(m2); err != nil {
			return fmt.Errorf("peer: handshake read 2: %w", err)
		}
		m3, err := nh.WriteMessage(nil)
		if err != nil {
			return fmt.Errorf("peer: handshake write 3: %w", err)
		}
		return writeHandshakeMsg(conn, m3)
	}

	m1, err := readHandshakeMsg(conn)
	if err != nil {
		return err
	}
	if _, err := nh.ReadMessage(m1); err != nil {
		return fmt.Errorf("peer: handshake read 1: %w", err)
	}
	m2, err := nh.WriteMessage(nil)
	if err != nil {
		return fmt.Errorf("peer: handshake write 2: %w", err)
	}
	if err := writeHandshakeMsg(conn, m2); err != nil {
		return err
	}
	m3, err := readHandshakeMsg(conn)
	if err != nil {
		return err
	}
	if _, err := nh.ReadMessage(m3); err != nil {
		return fmt.Errorf("peer: handshake read 3: %w", err)
	}
	return nil
}

func writeHandshakeMsg(conn net.Conn, msg []byte) error {
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(msg)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return fmt.Errorf("peer: handshake write: %w", err)
	}
	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("peer: handshake write: %w", err)
	}
	return nil
}

func readHandshakeMsg(conn net.Conn) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, fmt.Errorf("peer: handshake read: %w", err)
	}
	buf := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("peer: handshake read: %w", err)
	}
	return buf, nil
}

func (s *noiseFramedSession) Send(ctx context.Context, payload []byte) error {
	sealed, err := s.noise.SealData(nil, payload)
	if err != nil {
		return fmt.Errorf("peer: seal: %w", err)
	}
	if _, err := s.conn.Write(sealed); err != nil {
		return fmt.Errorf("peer: send: %w", err)
	}
	return nil
}

func (s *noiseFramedSession) Recv(ctx context.Context) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(s.conn, hdr[:]); err != nil {
		return nil, fmt.Errorf("peer: recv: %w", err)
	}
	body := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(s.conn, body); err != nil {
		return nil, fmt.Errorf("peer: recv: %w", err)
	}
	plain, err := s.noise.Open(nil, body)
	if err != nil {
		return nil, fmt.Errorf("peer: open: %w", err)
	}
	return plain, nil
}

func (s *noiseFramedSession) RemoteStatic() []byte { return s.remote }
func (s *noiseFramedSession) Close() error          { return s.conn.Close() }

// loopbackFramedSession is an in-process, unencrypted session used by
// tests and by runtimes that want a local peer without a socket.
type loopbackFramedSession struct {
	in, out chan []byte
}

// NewLoopbackPair builds two loopback sessions wired to each other,
// useful for exercising Session without a real listener.
func NewLoopbackPair() (FramedSession, FramedSession) {
	a := make(chan []byte, 16)
	b := make(chan []byte, 16)
	return &loopbackFramedSession{in: b, out: a}, &loopbackFramedSession{in: a, out: b}
}

func (s *loopbackFramedSession) Send(ctx context.Context, payload []byte) error {
	select {
	case s.out <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *loopbackFramedSession) Recv(ctx context.Context) ([]byte, error) {
	select {
	case p, ok := <-s.in:
		if !ok {
			return nil, fmt.Errorf("peer: loopback session closed")
		}
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *loopbackFramedSession) RemoteStatic() []byte { return nil }
func (s *loopbackFramedSession) Close() error {
	close(s.out)
	return nil
}

// Kind tags the closed set of concrete session kinds a Session can wrap.
// Per the design note on polymorphism over session kinds, Split
// dispatches on this tag rather than type-asserting against the
// interface, so the closed set is visible at the call site instead of
// hidden behind a runtime downcast chain.
type Kind int

const (
	// KindNoise wraps a noiseFramedSession.
	KindNoise Kind = iota
	// KindLoopback wraps a loopbackFramedSession.
	KindLoopback
)

// SendHalf is the send-only half produced by Session.Split.
type SendHalf interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// RecvHalf is the receive-only half produced by Session.Split.
type RecvHalf interface {
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Session wraps a typed-enum message exchange over one FramedSession of
// a known Kind, and supports splitting into independently-owned
// send/recv halves that may be moved to different threads.
type Session[Msg any] struct {
	kind  Kind
	inner FramedSession
	codec MessageCodec[Msg]
}

type MessageCodec[Msg any] interface {
	Encode(Msg) ([]byte, error)
	Decode([]byte) (Msg, error)
}

// NewSession wraps inner, tagged with its concrete kind, for typed
// message exchange under codec.
func NewSession[Msg any](kind Kind, inner FramedSession, codec MessageCodec[Msg]) *Session[Msg] {
	return &Session[Msg]{kind: kind, inner: inner, codec: codec}
}

// Kind reports the concrete session kind this Session wraps.
func (s *Session[Msg]) Kind() Kind { return s.kind }

// SendMessage encodes and sends one typed message.
func (s *Session[Msg]) SendMessage(ctx context.Context, msg Msg) error {
	b, err := s.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("peer: encoding message: %w", err)
	}
	return s.inner.Send(ctx, b)
}

// RecvMessage receives and decodes one typed message.
func (s *Session[Msg]) RecvMessage(ctx context.Context) (Msg, error) {
	var zero Msg
	b, err := s.inner.Recv(ctx)
	if err != nil {
		return zero, err
	}
	msg, err := s.codec.Decode(b)
	if err != nil {
		return zero, fmt.Errorf("peer: decoding message: %w", err)
	}
	return msg, nil
}

// Close releases the underlying session.
func (s *Session[Msg]) Close() error { return s.inner.Close() }

// Split produces independently-owned send and receive halves. Every
// Kind in the closed set above must be handled here; NewSession accepts
// any Kind value, so a Session built with a Kind outside that set
// panics in the default case.
func (s *Session[Msg]) Split() (SendHalf, RecvHalf) {
	switch s.kind {
	case KindNoise, KindLoopback:
		return splitHalf[Msg]{s}, splitHalf[Msg]{s}
	default:
		panic(fmt.Sprintf("peer: session kind %d has no registered split", s.kind))
	}
}

// splitHalf adapts the raw inner session to SendHalf/RecvHalf; both
// halves share the inner session, which is safe because FramedSession
// implementations only serialize one direction at a time over the
// socket and the framing format carries no shared mutable cursor.
type splitHalf[Msg any] struct {
	s *Session[Msg]
}

func (h splitHalf[Msg]) Send(ctx context.Context, payload []byte) error {
	return h.s.inner.Send(ctx, payload)
}
func (h splitHalf[Msg]) Recv(ctx context.Context) ([]byte, error) { return h.s.inner.Recv(ctx) }
func (h splitHalf[Msg]) Close() error                             { return h.s.inner.Close() }
