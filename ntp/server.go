package ntp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jroosing/hydranet/internal/pool"
)

// DefaultWorkersPerSocket is the default number of worker goroutines per
// UDP socket, matching internal/server.UDPServer's default.
const DefaultWorkersPerSocket = 1024

// datagramPool reduces allocations for incoming NTP datagrams; unlike
// DNS, SNTP datagrams never exceed PacketSize plus a small extension-field
// margin, so the pooled buffer is sized far smaller than the DNS server's.
var datagramPool = pool.New(func() *[]byte {
	buf := make([]byte, PacketSize+64)
	return &buf
})

// ClockSource supplies every injected property a Server stamps into its
// responses: not just the current wall-clock time, but the stratum, poll
// interval, precision, root delay/dispersion and reference id/timestamp
// that describe the clock the server is vouching for (spec.md §4.E-F).
// Production code uses StaticClock; tests inject a fixed or sequenced
// clock.
type ClockSource interface {
	// Now returns the current wall-clock time, used as both the arrival
	// timestamp (Receive) and the transmit timestamp.
	Now() time.Time
	// Stratum is the distance from a reference clock (1 = primary
	// reference, 2+ = secondary).
	Stratum() uint8
	// Poll is the signed power-of-two polling interval exponent.
	Poll() int8
	// Precision is the signed power-of-two clock precision exponent.
	Precision() int8
	// RootDelay is the total round-trip delay to the primary reference
	// source.
	RootDelay() time.Duration
	// RootDispersion is the total dispersion to the primary reference
	// source.
	RootDispersion() time.Duration
	// ReferenceID identifies the reference clock (a FourCC for stratum 1,
	// an IPv4 address for stratum 2+).
	ReferenceID() uint32
	// ReferenceTime is the last time the local clock was set or
	// corrected against its reference.
	ReferenceTime() time.Time
}

// StaticClock is a ClockSource with fixed injected properties; Now and
// ReferenceTime fall back to the system wall clock when left unset,
// so a zero-value StaticClock behaves like a bare system clock with no
// stratum information to offer.
type StaticClock struct {
	StratumValue        uint8
	PollValue           int8
	PrecisionValue      int8
	RootDelayValue      time.Duration
	RootDispersionValue time.Duration
	ReferenceIDValue    uint32
	ReferenceTimeValue  time.Time
	NowFunc             func() time.Time
}

func (c StaticClock) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now().UTC()
}
func (c StaticClock) Stratum() uint8                { return c.StratumValue }
func (c StaticClock) Poll() int8                    { return c.PollValue }
func (c StaticClock) Precision() int8               { return c.PrecisionValue }
func (c StaticClock) RootDelay() time.Duration      { return c.RootDelayValue }
func (c StaticClock) RootDispersion() time.Duration { return c.RootDispersionValue }
func (c StaticClock) ReferenceID() uint32           { return c.ReferenceIDValue }
func (c StaticClock) ReferenceTime() time.Time {
	if c.ReferenceTimeValue.IsZero() {
		return c.Now()
	}
	return c.ReferenceTimeValue
}

// RequestEvent is delivered to OnRequest listeners for every inbound
// packet the server accepts, before a response is built. Request is a
// pointer so a listener can mutate the decoded request in place; the
// mutated value is what the response gets built from. Setting Drop
// suppresses the response entirely (spec.md §4.E-F: "lets callers
// inspect/mutate each request and each answer, and drop either").
type RequestEvent struct {
	Peer    *net.UDPAddr
	Request *Packet
	Drop    bool
}

// AnswerEvent is delivered to OnAnswer listeners before the response is
// transmitted, so a listener can mutate Response in place or set Drop to
// suppress the send. Per the package's redesign note, this fires
// whenever any OnAnswer listener is registered even if Request is nil —
// a server may emit an unsolicited answer (e.g. broadcast mode) with no
// corresponding client request to log.
type AnswerEvent struct {
	Peer     *net.UDPAddr
	Request  *Packet
	Response *Packet
	Drop     bool
}

// Server answers SNTP client-mode requests from an injected ClockSource.
// Its socket and worker-pool shape is the UDP server generalized from DNS
// datagrams to fixed 48-byte NTP datagrams: SO_REUSEPORT multi-socket,
// one receiver plus a fixed worker pool per socket, pooled receive
// buffers, graceful shutdown with a deadline.
type Server struct {
	Logger           *slog.Logger
	Clock            ClockSource
	WorkersPerSocket int

	mu              sync.Mutex
	requestHandlers []func(*RequestEvent)
	answerHandlers  []func(*AnswerEvent)
	conns           []*net.UDPConn

	wg sync.WaitGroup
}

// AddRequestListener registers a callback invoked for every accepted
// inbound request, before the response is built. The callback may
// mutate ev.Request or set ev.Drop to suppress the response.
func (s *Server) AddRequestListener(fn func(*RequestEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestHandlers = append(s.requestHandlers, fn)
}

// AddAnswerListener registers a callback invoked for every response the
// server is about to transmit, before the send happens. The callback
// may mutate ev.Response or set ev.Drop to suppress the send.
func (s *Server) AddAnswerListener(fn func(*AnswerEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerHandlers = append(s.answerHandlers, fn)
}

func (s *Server) fireRequest(ev *RequestEvent) {
	s.mu.Lock()
	handlers := append([]func(*RequestEvent){}, s.requestHandlers...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (s *Server) hasAnswerListeners() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answerHandlers) > 0
}

func (s *Server) fireAnswer(ev *AnswerEvent) {
	s.mu.Lock()
	handlers := append([]func(*AnswerEvent){}, s.answerHandlers...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (s *Server) addConn(c *net.UDPConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns = append(s.conns, c)
}

func (s *Server) snapshotConns() []*net.UDPConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*net.UDPConn{}, s.conns...)
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

type datagram struct {
	bufPtr    *[]byte
	n         int
	peer      *net.UDPAddr
	multicast bool
}

// Run starts the server with one SO_REUSEPORT socket per CPU core, each
// with its own fixed worker pool, and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	if s.WorkersPerSocket <= 0 {
		s.WorkersPerSocket = DefaultWorkersPerSocket
	}
	if s.Clock == nil {
		s.Clock = StaticClock{}
	}

	socketCount := runtime.NumCPU()

	for range socketCount {
		conn, err := listenReusePort(addr)
		if err != nil {
			for _, c := range s.snapshotConns() {
				_ = c.Close()
			}
			return err
		}
		s.addConn(conn)

		ch := make(chan datagram, s.WorkersPerSocket*2)
		c := conn

		s.wg.Go(func() { s.recvLoop(ctx, c, ch, false) })
		for range s.WorkersPerSocket {
			s.wg.Go(func() { s.workerLoop(ctx, c, ch) })
		}
	}

	<-ctx.Done()
	return s.Stop(5 * time.Second)
}

// RunOnConn runs the server on an existing UDP connection, for callers
// (and tests) that manage the socket themselves.
func (s *Server) RunOnConn(ctx context.Context, conn *net.UDPConn) error {
	if s.WorkersPerSocket <= 0 {
		s.WorkersPerSocket = DefaultWorkersPerSocket
	}
	if s.Clock == nil {
		s.Clock = StaticClock{}
	}

	s.addConn(conn)
	ch := make(chan datagram, s.WorkersPerSocket)

	s.wg.Go(func() { s.recvLoop(ctx, conn, ch, false) })
	for range s.WorkersPerSocket {
		s.wg.Go(func() { s.workerLoop(ctx, conn, ch) })
	}

	<-ctx.Done()
	return nil
}

// RunMulticast joins groupAddr (an NTP multicast group, conventionally
// 224.0.1.1:123) and serves every datagram received on it as a
// multicast request (spec.md §4.E-F: "if the request was multicast, the
// answer uses mode Broadcast..."). A socket bound to a multicast group
// only ever receives traffic addressed to that group, so every datagram
// recvLoop pulls off it is definitionally a multicast request — no
// per-packet destination inspection is needed. Run alongside Run/
// RunOnConn (in its own goroutine) to serve both unicast and multicast
// requests from the same Server.
func (s *Server) RunMulticast(ctx context.Context, groupAddr string) error {
	if s.WorkersPerSocket <= 0 {
		s.WorkersPerSocket = DefaultWorkersPerSocket
	}
	if s.Clock == nil {
		s.Clock = StaticClock{}
	}

	conn, err := listenMulticast(groupAddr)
	if err != nil {
		return err
	}
	s.addConn(conn)

	ch := make(chan datagram, s.WorkersPerSocket)
	s.wg.Go(func() { s.recvLoop(ctx, conn, ch, true) })
	for range s.WorkersPerSocket {
		s.wg.Go(func() { s.workerLoop(ctx, conn, ch) })
	}

	<-ctx.Done()
	return nil
}

func (s *Server) recvLoop(ctx context.Context, conn *net.UDPConn, out chan<- datagram, multicast bool) {
	for {
		bufPtr := datagramPool.Get()
		buf := *bufPtr

		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			datagramPool.Put(bufPtr)
			if ctx.Err() != nil {
				return
			}
			return
		}

		select {
		case out <- datagram{bufPtr, n, peer, multicast}:
		default:
			datagramPool.Put(bufPtr)
		}
	}
}

func (s *Server) workerLoop(ctx context.Context, conn *net.UDPConn, in <-chan datagram) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-in:
			if !ok {
				return
			}
			s.handleDatagram(ctx, conn, d)
		}
	}
}

func (s *Server) handleDatagram(_ context.Context, conn *net.UDPConn, d datagram) {
	defer datagramPool.Put(d.bufPtr)

	req, err := Unmarshal((*d.bufPtr)[:d.n])
	if err != nil {
		s.logger().Debug("ntp: dropping malformed datagram", "peer", d.peer, "error", err)
		return
	}
	if req.Mode() != ModeClient {
		return
	}

	arrival := s.Clock.Now()

	reqEvent := &RequestEvent{Peer: d.peer, Request: &req}
	s.fireRequest(reqEvent)
	if reqEvent.Drop {
		return
	}
	req = *reqEvent.Request

	var resp Packet
	if d.multicast {
		resp = s.buildMulticastAnswer(req, arrival)
	} else {
		resp = s.buildUnicastAnswer(req, arrival)
	}

	ansEvent := &AnswerEvent{Peer: d.peer, Request: &req, Response: &resp}
	if s.hasAnswerListeners() {
		s.fireAnswer(ansEvent)
	}
	resp = *ansEvent.Response
	if ansEvent.Drop {
		return
	}

	if _, err := conn.WriteToUDP(resp.Marshal(), d.peer); err != nil {
		s.logger().Debug("ntp: write response failed", "peer", d.peer, "error", err)
	}
}

// buildUnicastAnswer builds a direct reply to a unicast client-mode
// request, stamping every injected ClockSource property (spec.md
// §4.E-F). Per §4.E-F, the reply mode is Server when the request's mode
// was Client, else SymmetricPassive; originate is the request's
// transmit timestamp, receive is the arrival time, transmit is sampled
// immediately before the caller sends the marshaled packet.
func (s *Server) buildUnicastAnswer(req Packet, arrival time.Time) Packet {
	mode := ModeSymmetricPassive
	if req.Mode() == ModeClient {
		mode = ModeServer
	}

	recv := FromTime(arrival)
	ref := FromTime(s.Clock.ReferenceTime())
	resp := Packet{
		Settings:       BuildSettings(LeapNoWarning, req.Version(), mode),
		Stratum:        s.Clock.Stratum(),
		Poll:           s.Clock.Poll(),
		Precision:      s.Clock.Precision(),
		RootDelay:      durationToFixed1616(s.Clock.RootDelay()),
		RootDispersion: durationToFixed1616(s.Clock.RootDispersion()),
		ReferenceID:    s.Clock.ReferenceID(),
		ReferenceSec:   ref.Seconds,
		ReferenceFrac:  ref.Fraction,
		OriginSec:      req.TransmitSec,
		OriginFrac:     req.TransmitFrac,
		ReceiveSec:     recv.Seconds,
		ReceiveFrac:    recv.Fraction,
	}
	tx := FromTime(s.Clock.Now())
	resp.TransmitSec = tx.Seconds
	resp.TransmitFrac = tx.Fraction
	return resp
}

// buildMulticastAnswer builds the reply spec.md §4.E-F mandates for a
// multicast request: mode Broadcast, version 4, poll 6, originate and
// receive timestamps blanked (the request was never individually
// addressed to this server, so there is no meaningful per-client
// receive time to report).
func (s *Server) buildMulticastAnswer(_ Packet, _ time.Time) Packet {
	ref := FromTime(s.Clock.ReferenceTime())
	resp := Packet{
		Settings:       BuildSettings(LeapNoWarning, 4, ModeBroadcast),
		Stratum:        s.Clock.Stratum(),
		Poll:           6,
		Precision:      s.Clock.Precision(),
		RootDelay:      durationToFixed1616(s.Clock.RootDelay()),
		RootDispersion: durationToFixed1616(s.Clock.RootDispersion()),
		ReferenceID:    s.Clock.ReferenceID(),
		ReferenceSec:   ref.Seconds,
		ReferenceFrac:  ref.Fraction,
	}
	tx := FromTime(s.Clock.Now())
	resp.TransmitSec = tx.Seconds
	resp.TransmitFrac = tx.Fraction
	return resp
}

// Stop closes all listening sockets and waits up to timeout for in-flight
// goroutines to exit.
func (s *Server) Stop(timeout time.Duration) error {
	for _, c := range s.snapshotConns() {
		_ = c.Close()
	}

	if timeout <= 0 {
		s.wg.Wait()
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("ntp server: timeout waiting for goroutines to exit")
	}
}

func listenReusePort(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", udpAddr.String())
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// listenMulticast joins the multicast group named by groupAddr
// (host:port, e.g. "224.0.1.1:123") on all multicast-capable
// interfaces and returns a UDP socket that receives only traffic
// addressed to that group.
func listenMulticast(groupAddr string) (*net.UDPConn, error) {
	gaddr, err := net.ResolveUDPAddr("udp", groupAddr)
	if err != nil {
		return nil, err
	}
	return net.ListenMulticastUDP("udp", nil, gaddr)
}

