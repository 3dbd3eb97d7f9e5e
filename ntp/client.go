package ntp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Answer is the result of a successful client query: the decoded response
// packet plus the round-trip delay and clock offset computed from the
// four timestamps exchanged (RFC 2030 §4's T1..T4 formulas).
type Answer struct {
	Packet Packet
	// Delay is the estimated round-trip network delay.
	Delay time.Duration
	// Offset is the estimated difference between the server's clock and
	// the local clock (server - local); add it to the local clock to
	// align with the server.
	Offset time.Duration
	// ReceivedAt is the local time the response arrived (T4).
	ReceivedAt time.Time
	// RootDelay and RootDispersion are the server's injected root
	// delay/dispersion, decoded from the packet's 16.16 fixed-point
	// wire form.
	RootDelay      time.Duration
	RootDispersion time.Duration
}

// Client performs one-shot SNTP queries (RFC 2030 §4's client/server
// mode, a single request/response exchange with no persistent
// association), mirroring the request/response-then-validate shape
// dnsclient.Client uses for DNS.
type Client struct {
	// Timeout bounds a single Query call. Zero means DefaultTimeout.
	Timeout time.Duration
	// Version is the NTP version number placed in outgoing requests.
	// Zero means DefaultVersion.
	Version uint8
}

// DefaultTimeout is used when Client.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// DefaultVersion is the NTP version number used when Client.Version is
// zero.
const DefaultVersion = 4

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) version() uint8 {
	if c.Version > 0 {
		return c.Version
	}
	return DefaultVersion
}

// Query performs a single client-mode request against addr (host:port,
// port defaults to 123 if omitted) and returns the server's answer with
// delay/offset computed relative to the local clock.
func (c *Client) Query(ctx context.Context, addr string) (Answer, error) {
	addr = withDefaultNTPPort(addr)

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", addr)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: dial %s: %v", ErrNTP, addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	t1 := FromTime(time.Now().UTC())
	req := Packet{
		Settings:     BuildSettings(LeapNoWarning, c.version(), ModeClient),
		TransmitSec:  t1.Seconds,
		TransmitFrac: t1.Fraction,
	}

	if _, err := conn.Write(req.Marshal()); err != nil {
		return Answer{}, fmt.Errorf("%w: write request: %v", ErrNTP, err)
	}

	buf := make([]byte, PacketSize+64)
	n, err := conn.Read(buf)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: read response: %v", ErrNTP, err)
	}
	t4Time := time.Now().UTC()

	resp, err := Unmarshal(buf[:n])
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrNTP, err)
	}

	if resp.Mode() != ModeServer && resp.Mode() != ModeBroadcast {
		return Answer{}, ErrModeMismatch
	}
	if resp.Stratum == 0 {
		return Answer{}, ErrKissOfDeath
	}
	if resp.OriginSec != req.TransmitSec || resp.OriginFrac != req.TransmitFrac {
		return Answer{}, ErrOriginMismatch
	}

	t1Time, err := ToTime(Timestamp{req.TransmitSec, req.TransmitFrac}, t4Time)
	if err != nil {
		return Answer{}, err
	}
	t2Time, err := ToTime(Timestamp{resp.ReceiveSec, resp.ReceiveFrac}, t4Time)
	if err != nil {
		return Answer{}, err
	}
	t3Time, err := ToTime(Timestamp{resp.TransmitSec, resp.TransmitFrac}, t4Time)
	if err != nil {
		return Answer{}, err
	}

	delay := t4Time.Sub(t1Time) - t3Time.Sub(t2Time)
	offset := (t2Time.Sub(t1Time) + t3Time.Sub(t4Time)) / 2

	return Answer{
		Packet:         resp,
		Delay:          delay,
		Offset:         offset,
		ReceivedAt:     t4Time,
		RootDelay:      resp.RootDelayDuration(),
		RootDispersion: resp.RootDispersionDuration(),
	}, nil
}

func withDefaultNTPPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, "123")
}
