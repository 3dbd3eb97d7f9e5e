// Package tcpnet implements an asynchronous, event-driven TCP client and
// server pair plus a buffered duplex stream built on top of the client's
// receive FIFO — the goroutine-lifecycle and mutex-discipline style of
// internal/server/{tcp,udp}_server.go generalized from DNS-over-TCP framing
// to an arbitrary byte stream.
package tcpnet

import "errors"

// ErrTCP is the sentinel wrapped by dial and write failures. The sentinels
// below are independent values and do not wrap it.
var ErrTCP = errors.New("tcpnet")

var (
	// ErrNotConnected is returned by Send (and by Stream.Write in
	// direct_writes mode), and passed to a SendAsync completion, when the
	// client is not in StateConnected. Stream.Read reports io.EOF instead
	// once the receive FIFO is empty.
	ErrNotConnected = errors.New("tcpnet: not connected")
	// ErrInvalidState is returned when an operation is attempted from a
	// state that does not permit it (e.g. Connect twice, Listen twice).
	ErrInvalidState = errors.New("tcpnet: invalid state")
	// ErrDisconnected is delivered to pending SendAsync completions when
	// the connection closes while they are outstanding.
	ErrDisconnected = errors.New("tcpnet: disconnected")
	// ErrTimeout is returned when a blocking operation exceeds its
	// deadline.
	ErrTimeout = errors.New("tcpnet: timeout")
	// ErrClosed is not returned by any operation in this package: a closed
	// Client reports ErrNotConnected, and Listen on a closed Server reports
	// ErrInvalidState.
	ErrClosed = errors.New("tcpnet: closed")
)
