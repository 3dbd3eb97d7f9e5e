package ntp

import "errors"

// ErrNTP is the sentinel wrapped by Client.Query's dial, I/O and decode
// failures. The sentinels below, ErrShortPacket and ErrEraAmbiguous are
// independent values and do not wrap it.
var ErrNTP = errors.New("ntp")

var (
	// ErrKissOfDeath is returned when a server responds with Stratum 0 and
	// a kiss code in ReferenceID (RFC 5905 §7.4) instead of a time.
	ErrKissOfDeath = errors.New("ntp: server sent kiss-of-death response")

	// ErrModeMismatch is returned when a response's Mode is neither
	// server nor broadcast.
	ErrModeMismatch = errors.New("ntp: response mode does not match request")

	// ErrOriginMismatch is returned when a response's OriginTimestamp does
	// not echo the request's TransmitTimestamp, the anti-spoofing check
	// analogous to DNS's transaction ID echo.
	ErrOriginMismatch = errors.New("ntp: response origin timestamp does not match request")
)
