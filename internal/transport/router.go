package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/meshwire/meshwire/wire"
)

// routerSession accepts connections from many dealer peers, keyed by the
// identity carried in each frame's Src field -- the same registry shape
// as cellorg's broker Connection map, specialized to routing by address
// instead of by JSON-RPC connection id.
type routerSession struct {
	identity []byte
	listener net.Listener

	mu    sync.RWMutex
	peers map[string]net.Conn

	mandatory int32
	state     int32
	events    chan Event
}

// ListenRouter binds addr and accepts dealer connections in the
// background for the lifetime of the session.
func ListenRouter(ctx context.Context, addr string) (Session, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: router listen %s: %w", addr, err)
	}
	s := &routerSession{
		listener: ln,
		peers:    make(map[string]net.Conn),
		events:   make(chan Event, 64),
	}
	atomic.StoreInt32(&s.state, int32(StateConnected))
	go s.acceptLoop()
	return s, nil
}

func (s *routerSession) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.readPeer(conn)
	}
}

func (s *routerSession) readPeer(conn net.Conn) {
	for {
		f, err := readFrame(conn)
		if err != nil {
			s.events <- Event{Err: fmt.Errorf("transport: router recv: %w", err)}
			conn.Close()
			return
		}
		s.mu.Lock()
		s.peers[string(f.Src)] = conn
		s.mu.Unlock()
		atomic.StoreInt32(&s.state, int32(StateActive))
		s.events <- Event{Frame: f}
	}
}

func (s *routerSession) Role() Role   { return RoleRouter }
func (s *routerSession) State() State { return State(atomic.LoadInt32(&s.state)) }
func (s *routerSession) Events() <-chan Event { return s.events }

func (s *routerSession) Send(ctx context.Context, f wire.Frame) error {
	// Route on Via, the actual next hop computed by the routing
	// decision table -- equal to Dst when the bus has no router.
	s.mu.RLock()
	conn, ok := s.peers[string(f.Via)]
	s.mu.RUnlock()
	if !ok {
		if atomic.LoadInt32(&s.mandatory) == 1 {
			return ErrNoPeer
		}
		return fmt.Errorf("transport: router has no connection for next hop %x", f.Via)
	}
	if err := writeFrame(conn, f); err != nil {
		return fmt.Errorf("transport: router send: %w", err)
	}
	atomic.StoreInt32(&s.state, int32(StateActive))
	return nil
}

func (s *routerSession) SetIdentity(id []byte) error {
	s.identity = append([]byte(nil), id...)
	return nil
}

func (s *routerSession) Identity() []byte { return s.identity }

func (s *routerSession) SetMandatory(mandatory bool) {
	if mandatory {
		atomic.StoreInt32(&s.mandatory, 1)
	} else {
		atomic.StoreInt32(&s.mandatory, 0)
	}
}

func (s *routerSession) Subscribe(topic []byte) error {
	return fmt.Errorf("transport: subscribe not supported on router session")
}

func (s *routerSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.peers {
		c.Close()
	}
	return s.listener.Close()
}
