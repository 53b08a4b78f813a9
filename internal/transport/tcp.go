package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshwire/meshwire/wire"
)

// p2pSession carries request/reply/push/pull/dealer roles over a single
// net.Conn. request, push and dealer dial out; reply and pull listen and
// accept exactly one peer: the static bus-id -> endpoint map models one
// peer per bus.
type p2pSession struct {
	role     Role
	conn     net.Conn
	listener net.Listener
	identity []byte

	mandatory int32 // atomic bool

	state int32 // atomic State

	events chan Event
	mu     sync.Mutex
}

// DialP2P opens a client-role session (request, push, dealer) to addr.
func DialP2P(ctx context.Context, role Role, addr string) (Session, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	s := newP2PSession(role, conn)
	atomic.StoreInt32(&s.state, int32(StateConnected))
	s.startReaderIfNeeded()
	return s, nil
}

// ListenP2P opens a server-role session (reply, pull, router-as-single-peer)
// by binding addr and accepting one connection.
func ListenP2P(ctx context.Context, role Role, addr string) (Session, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	conn, err := ln.Accept()
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("transport: accept on %s: %w", addr, err)
	}
	s := newP2PSession(role, conn)
	s.listener = ln
	atomic.StoreInt32(&s.state, int32(StateConnected))
	s.startReaderIfNeeded()
	return s, nil
}

// AdoptP2P wraps a pre-constructed net.Conn, for the "pre-existing socket
// handle" carrier variant.
func AdoptP2P(role Role, conn net.Conn) Session {
	s := newP2PSession(role, conn)
	atomic.StoreInt32(&s.state, int32(StateConnected))
	s.startReaderIfNeeded()
	return s
}

func newP2PSession(role Role, conn net.Conn) *p2pSession {
	return &p2pSession{
		role:   role,
		conn:   conn,
		events: make(chan Event, 64),
	}
}

func (s *p2pSession) canRecv() bool {
	switch s.role {
	case RoleRequest, RoleReply, RoleRouter, RoleDealer, RolePull:
		return true
	default:
		return false
	}
}

func (s *p2pSession) canSend() bool {
	switch s.role {
	case RoleRequest, RoleReply, RoleRouter, RoleDealer, RolePush:
		return true
	default:
		return false
	}
}

func (s *p2pSession) startReaderIfNeeded() {
	if !s.canRecv() {
		return
	}
	go s.readLoop()
}

func (s *p2pSession) readLoop() {
	for {
		f, err := readFrame(s.conn)
		if err != nil {
			s.events <- Event{Err: fmt.Errorf("transport: recv on %s session: %w", s.role, err)}
			if err == io.EOF {
				return
			}
			continue
		}
		atomic.StoreInt32(&s.state, int32(StateActive))
		s.events <- Event{Frame: f}
	}
}

func (s *p2pSession) Role() Role   { return s.role }
func (s *p2pSession) State() State { return State(atomic.LoadInt32(&s.state)) }

func (s *p2pSession) Events() <-chan Event {
	if !s.canRecv() {
		return nil
	}
	return s.events
}

func (s *p2pSession) Send(ctx context.Context, f wire.Frame) error {
	if !s.canSend() {
		return ErrSendNotSupported
	}
	if atomic.LoadInt32(&s.mandatory) == 1 && s.conn == nil {
		return ErrNoPeer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(dl)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	if err := writeFrame(s.conn, f); err != nil {
		return fmt.Errorf("transport: send on %s session: %w", s.role, err)
	}
	atomic.StoreInt32(&s.state, int32(StateActive))
	return nil
}

func (s *p2pSession) SetIdentity(id []byte) error {
	s.identity = append([]byte(nil), id...)
	return nil
}

func (s *p2pSession) Identity() []byte { return s.identity }

func (s *p2pSession) SetMandatory(mandatory bool) {
	if mandatory {
		atomic.StoreInt32(&s.mandatory, 1)
	} else {
		atomic.StoreInt32(&s.mandatory, 0)
	}
}

func (s *p2pSession) Subscribe(topic []byte) error {
	return fmt.Errorf("transport: subscribe not supported on %s session", s.role)
}

func (s *p2pSession) Close() error {
	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	return err
}

// readFrame/writeFrame reuse wire's length-prefixed layout but frame the
// whole encoded record with one more uint32 so a partial read can be
// resynchronized on the next message.
func readFrame(r io.Reader) (wire.Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return wire.Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return wire.Frame{}, err
	}
	return wire.Decode(buf)
}

func writeFrame(w io.Writer, f wire.Frame) error {
	encoded := wire.Encode(f)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(encoded)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(encoded)
	return err
}
