package tcpnet

import (
	"fmt"
	"sync"
	"time"

	"github.com/jroosing/hydranet/internal/wire"
)

// DefaultReadTimeout and DefaultWriteTimeout are used when Stream.ReadTimeout
// / Stream.WriteTimeout are zero.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// flushStallRounds is the number of consecutive WriteTimeout waits a
// flush may spend without the send buffer shrinking before it gives up
// and reports Timeout (spec.md §4.I).
const flushStallRounds = 5

// Stream is a full-duplex byte stream over a Client: reads consume the
// client's receive FIFO, writes go through one of three buffering modes
// selected by DirectWrites/SendOnFlush. Grounded on the teacher's pooled
// writev path (internal/server/tcp_server.go's net.Buffers use) for the
// direct-write mode, and on internal/wire.Fifo plus internal/pool-style
// background draining for the queued-write mode.
type Stream struct {
	client *Client

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	mu           sync.Mutex
	directWrites bool
	sendOnFlush  bool
	sendBuf      *wire.Fifo
	pendingAsync int
	pumpStarted  bool
	pumpWake     chan struct{}
}

func newStream(c *Client) *Stream {
	return &Stream{
		client:   c,
		sendBuf:  wire.NewFifo(4096),
		pumpWake: make(chan struct{}, 1),
	}
}

func (s *Stream) readTimeout() time.Duration {
	if s.ReadTimeout > 0 {
		return s.ReadTimeout
	}
	return DefaultReadTimeout
}

func (s *Stream) writeTimeout() time.Duration {
	if s.WriteTimeout > 0 {
		return s.WriteTimeout
	}
	return DefaultWriteTimeout
}

// Read blocks until at least one byte is available, ReadTimeout elapses
// (returning ErrTimeout), or the peer has closed with no data left
// (returning io.EOF via the same contract as Client's receive pipeline).
func (s *Stream) Read(dst []byte) (int, error) {
	return s.client.readRaw(dst, s.readTimeout())
}

// SetDirectWrites toggles the direct_writes mode: each Write calls
// Client.Send synchronously and Flush becomes a no-op. Setting
// SendOnFlush at the same time as a non-empty internal buffer is an
// error, matching spec.md §4.I.
func (s *Stream) SetDirectWrites(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directWrites = v
	return nil
}

// SetSendOnFlush toggles the send_on_flush mode: writes accumulate
// indefinitely in the internal buffer and only transmit on Flush.
func (s *Stream) SetSendOnFlush(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v && s.directWrites && s.sendBuf.Len() > 0 {
		return fmt.Errorf("%w: cannot enable send_on_flush with direct_writes and a non-empty buffer", ErrInvalidState)
	}
	s.sendOnFlush = v
	return nil
}

// Write buffers or transmits b depending on the active mode (spec.md
// §4.I's three write modes).
func (s *Stream) Write(b []byte) (int, error) {
	s.mu.Lock()
	direct := s.directWrites
	onFlush := s.sendOnFlush
	s.mu.Unlock()

	if direct {
		if err := s.client.Send(b); err != nil {
			return 0, err
		}
		return len(b), nil
	}

	s.sendBuf.Enqueue(b)
	if !onFlush {
		s.ensurePumpStarted()
		s.wakePump()
	}
	return len(b), nil
}

func (s *Stream) ensurePumpStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pumpStarted {
		return
	}
	s.pumpStarted = true
	go s.drainPump()
}

func (s *Stream) wakePump() {
	select {
	case s.pumpWake <- struct{}{}:
	default:
	}
}

// drainPump is the background send task for the default (queued,
// send-on-flush=false) mode: it dequeues everything from sendBuf and
// calls Client.SendAsync, exiting once the client disconnects.
func (s *Stream) drainPump() {
	buf := make([]byte, 4096)
	for {
		n := s.sendBuf.Dequeue(buf)
		if n == 0 {
			if s.client.State() != StateConnected {
				return
			}
			select {
			case <-s.pumpWake:
			case <-s.client.closeCh:
				return
			case <-time.After(s.writeTimeout()):
			}
			continue
		}

		chunk := append([]byte(nil), buf[:n]...)
		s.mu.Lock()
		s.pendingAsync++
		s.mu.Unlock()

		s.client.SendAsync(chunk, func(error) {
			s.mu.Lock()
			s.pendingAsync--
			s.mu.Unlock()
		})
	}
}

// Flush blocks until the internal send buffer is empty and (in the
// default mode) the client has no pending asynchronous sends in flight.
// In direct_writes mode this is a no-op. In send_on_flush mode this
// synchronously transmits and clears the entire buffer.
func (s *Stream) Flush() error {
	s.mu.Lock()
	direct := s.directWrites
	onFlush := s.sendOnFlush
	s.mu.Unlock()

	if direct {
		return nil
	}

	if onFlush {
		buf := make([]byte, 4096)
		for {
			n := s.sendBuf.Dequeue(buf)
			if n == 0 {
				return nil
			}
			if err := s.client.Send(buf[:n]); err != nil {
				return err
			}
		}
	}

	s.ensurePumpStarted()
	s.wakePump()

	lastLen := s.sendBuf.Len()
	stall := 0
	for {
		if s.sendBuf.Len() == 0 {
			s.mu.Lock()
			pending := s.pendingAsync
			s.mu.Unlock()
			if pending == 0 {
				return nil
			}
		}
		time.Sleep(s.writeTimeout())
		cur := s.sendBuf.Len()
		if cur >= lastLen && cur > 0 {
			stall++
			if stall >= flushStallRounds {
				return ErrTimeout
			}
		} else {
			stall = 0
		}
		lastLen = cur
	}
}

// Close flushes any buffered writes, then closes the underlying client.
func (s *Stream) Close() error {
	_ = s.Flush()
	return s.client.Close()
}
