package tcpnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jroosing/hydranet/internal/wire"
)

// State is a Client's lifecycle state:
// Disconnected -> Connecting -> Connected -> Closed. A failed Connect
// moves Connecting back to Disconnected; Closed is final.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultConnectTimeout is used when Client.ConnectTimeout is zero.
const DefaultConnectTimeout = 10 * time.Second

// ReceivedHandler inspects freshly arrived bytes and reports whether it
// consumed them itself. A handler that returns true prevents data from
// being appended to the client's receive FIFO, per spec.md §4.G's
// Received(bytes, handled) contract.
type ReceivedHandler func(data []byte) (handled bool)

type sendJob struct {
	data       []byte
	completion func(error)
}

// Client is an asynchronous, event-driven TCP client: SendAsync and
// receiving do not block the caller; Connect blocks until the dial (and
// any Upgrade) completes, and Send blocks until the OS accepts the bytes. Grounded on
// internal/server/tcp_server.go's goroutine-lifecycle discipline
// (explicit per-goroutine exit conditions, deadline-based reads/writes),
// restructured client-side around a receive-pump goroutine and a
// serialized send-pump goroutine.
type Client struct {
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration

	// Upgrade, when set, is applied to the freshly dialed socket before the
	// receive/send pumps start — the seam tlsnet.Client uses to layer a
	// TLS handshake directly on Connect's raw net.Conn (spec.md §4.J: "TLS
	// client wraps tcpnet.Client's byte stream"), without tlsnet needing
	// to reimplement dial-with-timeout or the pump lifecycle itself.
	Upgrade func(ctx context.Context, conn net.Conn) (net.Conn, error)

	conn  net.Conn
	state atomic.Int32

	recv *wire.Fifo

	connectedListeners    *listenerSet[func()]
	bufferedListeners     *listenerSet[func([]byte)]
	receivedListeners     *listenerSet[ReceivedHandler]
	errorListeners        *listenerSet[func(error)]
	disconnectedListeners *listenerSet[func()]

	sendCh    chan sendJob
	closeCh   chan struct{}
	closeOnce sync.Once

	streamMu sync.Mutex
	stream   *Stream
}

// NewClient creates a Client ready to Connect.
func NewClient() *Client {
	return &Client{
		connectedListeners:    newListenerSet[func()](),
		bufferedListeners:     newListenerSet[func([]byte)](),
		receivedListeners:     newListenerSet[ReceivedHandler](),
		errorListeners:        newListenerSet[func(error)](),
		disconnectedListeners: newListenerSet[func()](),
	}
}

// State returns the client's current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

// AddConnectedListener registers fn to run after a successful Connect.
func (c *Client) AddConnectedListener(fn func()) int { return c.connectedListeners.Add(fn) }

// RemoveConnectedListener unregisters a listener added by AddConnectedListener.
func (c *Client) RemoveConnectedListener(id int) { c.connectedListeners.Remove(id) }

// AddBufferedListener registers fn to run whenever bytes are accepted for
// asynchronous send, before the OS write completes.
func (c *Client) AddBufferedListener(fn func([]byte)) int { return c.bufferedListeners.Add(fn) }

// RemoveBufferedListener unregisters a listener added by AddBufferedListener.
func (c *Client) RemoveBufferedListener(id int) { c.bufferedListeners.Remove(id) }

// AddReceivedListener registers fn to inspect every chunk of bytes read
// off the socket.
func (c *Client) AddReceivedListener(fn ReceivedHandler) int { return c.receivedListeners.Add(fn) }

// RemoveReceivedListener unregisters a listener added by AddReceivedListener.
func (c *Client) RemoveReceivedListener(id int) { c.receivedListeners.Remove(id) }

// AddErrorListener registers fn to run whenever a non-EOF I/O error occurs.
func (c *Client) AddErrorListener(fn func(error)) int { return c.errorListeners.Add(fn) }

// RemoveErrorListener unregisters a listener added by AddErrorListener.
func (c *Client) RemoveErrorListener(id int) { c.errorListeners.Remove(id) }

// AddDisconnectedListener registers fn to run once when the client
// transitions out of StateConnected/StateConnecting for the last time.
func (c *Client) AddDisconnectedListener(fn func()) int { return c.disconnectedListeners.Add(fn) }

// RemoveDisconnectedListener unregisters a listener added by AddDisconnectedListener.
func (c *Client) RemoveDisconnectedListener(id int) { c.disconnectedListeners.Remove(id) }

func (c *Client) fireConnected() {
	for _, fn := range c.connectedListeners.Snapshot() {
		fn()
	}
}
func (c *Client) fireBuffered(b []byte) {
	for _, fn := range c.bufferedListeners.Snapshot() {
		fn(b)
	}
}
func (c *Client) fireReceived(b []byte) (handled bool) {
	for _, fn := range c.receivedListeners.Snapshot() {
		if fn(b) {
			handled = true
		}
	}
	return handled
}
func (c *Client) fireError(err error) {
	for _, fn := range c.errorListeners.Snapshot() {
		fn(err)
	}
}
func (c *Client) fireDisconnected() {
	for _, fn := range c.disconnectedListeners.Snapshot() {
		fn()
	}
}

// Connect dials host:port and transitions Disconnected -> Connected, or
// fails and returns to Disconnected.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("%w: connect from state %s", ErrInvalidState, State(c.state.Load()))
	}

	timeout := c.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("%w: dial %s:%d: %v", ErrTCP, host, port, err)
	}

	if c.Upgrade != nil {
		upgraded, err := c.Upgrade(dialCtx, conn)
		if err != nil {
			_ = conn.Close()
			c.state.Store(int32(StateDisconnected))
			return err
		}
		conn = upgraded
	}

	c.conn = conn
	c.recv = wire.NewFifo(4096)
	c.sendCh = make(chan sendJob, 64)
	c.closeCh = make(chan struct{})
	c.state.Store(int32(StateConnected))

	go c.recvPump()
	go c.sendPump()

	c.fireConnected()
	return nil
}

// Send synchronously writes b to the socket and returns once the OS has
// accepted it.
func (c *Client) Send(b []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	if c.SendTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.SendTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := c.conn.Write(b); err != nil {
		c.fireError(err)
		return fmt.Errorf("%w: write: %v", ErrTCP, err)
	}
	return nil
}

// SendAsync enqueues b for transmission without blocking; completion (if
// non-nil) fires once the OS has accepted the bytes or the send failed.
// Sends enqueued via SendAsync are transmitted in enqueue order.
func (c *Client) SendAsync(b []byte, completion func(error)) {
	if c.State() != StateConnected {
		if completion != nil {
			completion(ErrNotConnected)
		}
		return
	}
	c.fireBuffered(b)
	select {
	case c.sendCh <- sendJob{data: b, completion: completion}:
	case <-c.closeCh:
		if completion != nil {
			completion(ErrDisconnected)
		}
	}
}

func (c *Client) sendPump() {
	for {
		select {
		case job := <-c.sendCh:
			err := c.Send(job.data)
			if job.completion != nil {
				job.completion(err)
			}
		case <-c.closeCh:
			c.drainPendingSends()
			return
		}
	}
}

func (c *Client) drainPendingSends() {
	for {
		select {
		case job := <-c.sendCh:
			if job.completion != nil {
				job.completion(ErrDisconnected)
			}
		default:
			return
		}
	}
}

func (c *Client) recvPump() {
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if !c.fireReceived(data) {
				c.recv.Enqueue(data)
			}
		}
		if err != nil {
			c.disconnect(err)
			return
		}
	}
}

func (c *Client) disconnect(cause error) {
	swapped := c.state.CompareAndSwap(int32(StateConnected), int32(StateClosed)) ||
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed))
	if !swapped {
		return
	}
	c.closeOnce.Do(func() { close(c.closeCh) })
	if cause != nil && !errors.Is(cause, io.EOF) {
		c.fireError(cause)
	}
	c.fireDisconnected()
}

// Close is idempotent; it cancels pending receives and sends and fires
// Disconnected if the client was connected or connecting.
func (c *Client) Close() error {
	prev := State(c.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return nil
	}
	c.closeOnce.Do(func() {
		if c.closeCh != nil {
			close(c.closeCh)
		}
	})
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if prev == StateConnected || prev == StateConnecting {
		c.fireDisconnected()
	}
	return nil
}

// Conn returns the underlying net.Conn (the upgraded one when Upgrade is
// set). The receive pump keeps reading from it until the client
// disconnects, so a direct Read competes with the pump for incoming bytes
// and a direct Write interleaves with Send/SendAsync. tlsnet layers TLS
// through Upgrade, not through Conn.
func (c *Client) Conn() net.Conn { return c.conn }

// GetStream returns the buffered duplex Stream (§4.I) wrapping this
// client, creating it on first call.
func (c *Client) GetStream() *Stream {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.stream == nil {
		c.stream = newStream(c)
	}
	return c.stream
}

// readRaw blocks until at least one byte is available in the receive
// FIFO, the deadline elapses, or the client disconnects. It returns
// io.EOF once the FIFO is empty and the client is no longer connected,
// and ErrTimeout if the deadline elapses first with the peer still
// connected.
func (c *Client) readRaw(dst []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		if n := c.recv.Dequeue(dst); n > 0 {
			return n, nil
		}
		if c.recv.Len() == 0 && c.State() != StateConnected {
			return 0, io.EOF
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrTimeout
		}

		notify := make(chan struct{})
		var notifyOnce sync.Once
		closeNotify := func() { notifyOnce.Do(func() { close(notify) }) }

		timer := time.AfterFunc(remaining, closeNotify)
		done := make(chan struct{})
		go func() {
			select {
			case <-c.closeCh:
				closeNotify()
			case <-done:
			}
		}()
		c.recv.Wait(notify)
		close(done)
		timer.Stop()
		closeNotify()
	}
}
