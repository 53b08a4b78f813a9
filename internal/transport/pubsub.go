package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/meshwire/meshwire/wire"
)

// pubSession binds a listener and fans every Send out to all currently
// connected subscribers, mirroring cellorg's Topic broadcast but over
// raw frames instead of JSON-RPC publish calls.
type pubSession struct {
	identity []byte
	listener net.Listener

	mu   sync.RWMutex
	subs map[string]net.Conn

	state  int32
	events chan Event // unused, publish never receives
}

// ListenPub binds addr and accepts subscriber connections for the life
// of the session.
func ListenPub(ctx context.Context, addr string) (Session, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: publish listen %s: %w", addr, err)
	}
	s := &pubSession{listener: ln, subs: make(map[string]net.Conn)}
	atomic.StoreInt32(&s.state, int32(StateConnected))
	go s.acceptLoop()
	return s, nil
}

func (s *pubSession) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.subs[conn.RemoteAddr().String()] = conn
		s.mu.Unlock()
		go func() {
			<-connClosed(conn)
			s.mu.Lock()
			delete(s.subs, conn.RemoteAddr().String())
			s.mu.Unlock()
		}()
	}
}

// connClosed returns a channel closed once a zero-length read fails,
// used only to notice a subscriber going away so it can be pruned.
func connClosed(conn net.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	return done
}

func (s *pubSession) Role() Role              { return RolePublish }
func (s *pubSession) State() State            { return State(atomic.LoadInt32(&s.state)) }
func (s *pubSession) Events() <-chan Event    { return nil }
func (s *pubSession) SetIdentity(id []byte) error {
	s.identity = append([]byte(nil), id...)
	return nil
}
func (s *pubSession) Identity() []byte { return s.identity }
func (s *pubSession) SetMandatory(bool) {}
func (s *pubSession) Subscribe(topic []byte) error {
	return fmt.Errorf("transport: subscribe not supported on publish session")
}

func (s *pubSession) Send(ctx context.Context, f wire.Frame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var firstErr error
	for _, conn := range s.subs {
		if err := writeFrame(conn, f); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("transport: publish fan-out: %w", err)
		}
	}
	atomic.StoreInt32(&s.state, int32(StateActive))
	return firstErr
}

func (s *pubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.subs {
		c.Close()
	}
	return s.listener.Close()
}

// subSession dials a publisher and delivers only frames whose payload
// starts with the configured topic prefix. Empty topic matches all.
type subSession struct {
	identity []byte
	conn     net.Conn
	topic    []byte

	state  int32
	events chan Event
}

// DialSub connects to a publisher at addr.
func DialSub(ctx context.Context, addr string) (Session, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: subscribe dial %s: %w", addr, err)
	}
	s := &subSession{conn: conn, events: make(chan Event, 64)}
	atomic.StoreInt32(&s.state, int32(StateConnected))
	go s.readLoop()
	return s, nil
}

func (s *subSession) readLoop() {
	for {
		f, err := readFrame(s.conn)
		if err != nil {
			s.events <- Event{Err: fmt.Errorf("transport: subscribe recv: %w", err)}
			return
		}
		if len(s.topic) > 0 && !bytes.HasPrefix(f.Payload, s.topic) {
			continue
		}
		atomic.StoreInt32(&s.state, int32(StateActive))
		s.events <- Event{Frame: f}
	}
}

func (s *subSession) Role() Role           { return RoleSubscribe }
func (s *subSession) State() State         { return State(atomic.LoadInt32(&s.state)) }
func (s *subSession) Events() <-chan Event { return s.events }
func (s *subSession) SetIdentity(id []byte) error {
	s.identity = append([]byte(nil), id...)
	return nil
}
func (s *subSession) Identity() []byte { return s.identity }
func (s *subSession) SetMandatory(bool) {}

func (s *subSession) Subscribe(topic []byte) error {
	s.topic = append([]byte(nil), topic...)
	return nil
}

func (s *subSession) Send(ctx context.Context, f wire.Frame) error {
	return ErrSendNotSupported
}

func (s *subSession) Close() error { return s.conn.Close() }
