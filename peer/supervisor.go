package peer

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/flynn/noise"
)

// SupervisorMode chooses whether the supervisor dials out once or binds
// a listener and accepts indefinitely.
type SupervisorMode int

const (
	ModeConnect SupervisorMode = iota
	ModeListen
)

// SpawnMode chooses, in listen mode, how each accepted connection is
// handed off to the user runtime.
type SpawnMode int

const (
	// SpawnThread serves the connection on a new goroutine.
	SpawnThread SpawnMode = iota
	// SpawnFork is accepted only where posixForkSupported. No process
	// is forked: the connection is served on a new goroutine, exactly
	// as with SpawnThread.
	SpawnFork
)

// Config describes one supervisor instance.
type Config struct {
	Mode      SupervisorMode
	Addr      string
	LocalKey  noise.DHKey
	SpawnMode SpawnMode
}

// Runtime is the user-supplied reactor invoked once per peer session,
// whether obtained by connecting out or by accepting a connection.
type Runtime[Msg any] func(ctx context.Context, sess *Session[Msg], remoteAddr string)

// Supervisor drives the listen/connect loop for message type Msg.
type Supervisor[Msg any] struct {
	cfg   Config
	codec MessageCodec[Msg]
}

// NewSupervisor validates cfg and builds a supervisor. Fork spawn mode
// is rejected here, at configuration time, on non-POSIX platforms
// rather than deferred to the first accepted connection.
func NewSupervisor[Msg any](cfg Config, codec MessageCodec[Msg]) (*Supervisor[Msg], error) {
	if cfg.Mode == ModeListen && cfg.SpawnMode == SpawnFork && !posixForkSupported {
		return nil, fmt.Errorf("peer: fork spawn mode requires a POSIX platform")
	}
	return &Supervisor[Msg]{cfg: cfg, codec: codec}, nil
}

// Run executes the supervisor: a single connect-and-hand-off in
// ModeConnect, or an indefinite accept loop in ModeListen.
func (sup *Supervisor[Msg]) Run(ctx context.Context, runtime Runtime[Msg]) error {
	switch sup.cfg.Mode {
	case ModeConnect:
		inner, err := DialNoise(ctx, sup.cfg.Addr, sup.cfg.LocalKey)
		if err != nil {
			return err
		}
		sess := NewSession[Msg](KindNoise, inner, sup.codec)
		runtime(ctx, sess, sup.cfg.Addr)
		return nil
	case ModeListen:
		return sup.listenLoop(ctx, runtime)
	default:
		return fmt.Errorf("peer: unknown supervisor mode %d", sup.cfg.Mode)
	}
}

func (sup *Supervisor[Msg]) listenLoop(ctx context.Context, runtime Runtime[Msg]) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", sup.cfg.Addr)
	if err != nil {
		return fmt.Errorf("peer: listen %s: %w", sup.cfg.Addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("peer: accept: %w", err)
		}
		remote := conn.RemoteAddr().String()
		// Both spawn modes hand the connection to a fresh goroutine:
		// a genuine raw fork() of a multi-threaded Go process only
		// duplicates the calling thread and is unsafe to continue
		// running arbitrary Go code in, so SpawnFork's contribution is
		// the POSIX-only configuration-time gate above, not a
		// different runtime mechanism.
		name := fmt.Sprintf("peerd-listener%s", remote)
		go sup.serve(ctx, conn, remote, name, runtime)
	}
}

func (sup *Supervisor[Msg]) serve(ctx context.Context, conn net.Conn, remote, name string, runtime Runtime[Msg]) {
	inner, err := AcceptNoise(conn, sup.cfg.LocalKey)
	if err != nil {
		log.Printf("%s: handshake failed: %v", name, err)
		conn.Close()
		return
	}
	sess := NewSession[Msg](KindNoise, inner, sup.codec)
	runtime(ctx, sess, remote)
}
