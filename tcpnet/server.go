package tcpnet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jroosing/hydranet/internal/wire"
)

// ServerState is the async TCP server's lifecycle state.
type ServerState int32

const (
	ServerIdle ServerState = iota
	ServerListening
	ServerClosed
)

// AcceptEvent is delivered to ClientAccepted listeners.
type AcceptEvent struct {
	Client *Client
}

// ExceptionEvent is delivered to ClientException listeners when a
// ClientAccepted handler panics.
type ExceptionEvent struct {
	Client *Client
	Err    error
}

// Server is an asynchronous TCP server: accept_threads worker goroutines
// pull from the OS accept queue (one real net.Listener per worker, all
// bound with SO_REUSEPORT so the kernel load-balances across them),
// constructing a Client per accepted socket and registering it for
// lifecycle tracking. Grounded directly on
// internal/server/tcp_server.go's SO_REUSEPORT multi-listener accept
// loop and per-IP connection cap, generalized from "one listener per CPU
// core" to an explicit accept_threads configuration knob and from
// per-IP limiting to per-listener backpressure (AcceptTasksBusy).
type Server struct {
	AcceptThreads  int
	AcceptBacklog  int
	BufferSize     int
	ReceiveTimeout time.Duration
	SendTimeout    time.Duration

	state atomic.Int32

	acceptedListeners  *listenerSet[func(AcceptEvent)]
	exceptionListeners *listenerSet[func(ExceptionEvent)]
	busyListeners      *listenerSet[func()]

	listeners []net.Listener
	wg        sync.WaitGroup

	mu      sync.Mutex
	clients map[*Client]struct{}

	busyCount atomic.Int32
}

// NewServer creates a Server ready to Listen, with AcceptThreads defaulting
// to 1 if left unset.
func NewServer() *Server {
	return &Server{
		acceptedListeners:  newListenerSet[func(AcceptEvent)](),
		exceptionListeners: newListenerSet[func(ExceptionEvent)](),
		busyListeners:      newListenerSet[func()](),
		clients:            map[*Client]struct{}{},
	}
}

// AddClientAcceptedListener registers fn to run for every accepted connection.
func (s *Server) AddClientAcceptedListener(fn func(AcceptEvent)) int {
	return s.acceptedListeners.Add(fn)
}

// AddClientExceptionListener registers fn to run when a ClientAccepted
// handler fails.
func (s *Server) AddClientExceptionListener(fn func(ExceptionEvent)) int {
	return s.exceptionListeners.Add(fn)
}

// AddAcceptTasksBusyListener registers fn to run whenever every accept
// worker is simultaneously busy handling a just-accepted connection.
func (s *Server) AddAcceptTasksBusyListener(fn func()) int {
	return s.busyListeners.Add(fn)
}

func (s *Server) State() ServerState { return ServerState(s.state.Load()) }

// Listen binds to addr with AcceptThreads SO_REUSEPORT listeners and
// transitions Idle -> Listening. Configuration fields must not be
// changed afterward.
func (s *Server) Listen(ctx context.Context, addr string) error {
	if !s.state.CompareAndSwap(int32(ServerIdle), int32(ServerListening)) {
		return fmt.Errorf("%w: listen from state %d", ErrInvalidState, s.State())
	}
	if s.AcceptThreads <= 0 {
		s.AcceptThreads = 1
	}

	s.listeners = make([]net.Listener, 0, s.AcceptThreads)
	for range s.AcceptThreads {
		ln, err := listenTCPReusePort(ctx, addr)
		if err != nil {
			for _, l := range s.listeners {
				_ = l.Close()
			}
			return err
		}
		s.listeners = append(s.listeners, ln)

		listener := ln
		s.wg.Add(1)
		go s.acceptLoop(ctx, listener)
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	s.busyCount.Add(1)
	defer s.busyCount.Add(-1)

	for {
		s.busyCount.Add(-1)
		c, err := ln.Accept()
		s.busyCount.Add(1)
		if err != nil {
			if ctx.Err() != nil || s.State() == ServerClosed {
				return
			}
			return
		}

		if int(s.busyCount.Load()) >= s.AcceptThreads {
			s.fireBusy()
		}

		client := NewClient()
		client.conn = c
		client.ReceiveTimeout = s.ReceiveTimeout
		client.SendTimeout = s.SendTimeout
		client.recv = wire.NewFifo(4096)
		client.sendCh = make(chan sendJob, 64)
		client.closeCh = make(chan struct{})
		client.state.Store(int32(StateConnected))
		go client.recvPump()
		go client.sendPump()

		s.register(client)
		client.AddDisconnectedListener(func() { s.unregister(client) })

		s.dispatchAccepted(client)
	}
}

func (s *Server) dispatchAccepted(client *Client) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in ClientAccepted handler: %v", r)
			s.fireException(ExceptionEvent{Client: client, Err: err})
		}
	}()
	for _, fn := range s.acceptedListeners.Snapshot() {
		fn(AcceptEvent{Client: client})
	}
}

func (s *Server) fireException(ev ExceptionEvent) {
	for _, fn := range s.exceptionListeners.Snapshot() {
		fn(ev)
	}
}

func (s *Server) fireBusy() {
	for _, fn := range s.busyListeners.Snapshot() {
		fn()
	}
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

// Clients returns a point-in-time snapshot of registered clients.
func (s *Server) Clients() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

// Close stops accepting new connections and closes every registered
// client.
func (s *Server) Close() error {
	s.state.Store(int32(ServerClosed))
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	for _, c := range s.Clients() {
		_ = c.Close()
	}
	s.wg.Wait()
	return nil
}

// listenTCPReusePort opens a SO_REUSEPORT TCP listener. The OS accept
// backlog (Server.AcceptBacklog) is advisory only — Go's net package does
// not expose a portable way to set it per-listener, matching
// internal/server/tcp_server.go's listenTCPReusePort, which carries the
// same limitation.
func listenTCPReusePort(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}
	return lc.Listen(ctx, "tcp", addr)
}
