package dnsclient

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/jroosing/hydranet/internal/dns"
)

// attemptUDP sends reqBytes to server over UDP and returns the parsed,
// echo-validated response. A truncated (TC-bit) reply is reported as a
// failed attempt (ErrMalformedResponse) rather than handed back as a
// usable answer: spec.md §4.D step 2 races UDP and TCP as two independent
// concurrent attempts per server, so a truncated UDP reply must not win
// the race or the fallback
// selection over a complete concurrent TCP reply. Grounded on
// _examples/jroosing-HydraDNS/internal/resolvers/forwarding_resolver.go's
// queryOneAttempt, stripped of connection pooling and cache bookkeeping
// (this client never caches).
func attemptUDP(ctx context.Context, server string, query dns.Packet, reqBytes []byte) (Response, error) {
	respBytes, err := queryUDP(ctx, server, reqBytes)
	if err != nil {
		return Response{}, err
	}
	if dns.IsTruncated(respBytes) {
		return Response{}, fmt.Errorf("%w: %s: truncated UDP response", ErrMalformedResponse, server)
	}
	return parseAndValidate(server, query, respBytes)
}

// attemptTCP sends reqBytes to server over a 2-byte length-prefixed TCP
// connection and returns the parsed, echo-validated response. Grounded
// verbatim on the teacher's queryUpstreamTCP framing.
func attemptTCP(ctx context.Context, server string, query dns.Packet, reqBytes []byte) (Response, error) {
	respBytes, err := queryTCP(ctx, server, reqBytes)
	if err != nil {
		return Response{}, err
	}
	return parseAndValidate(server, query, respBytes)
}

func parseAndValidate(server string, query dns.Packet, respBytes []byte) (Response, error) {
	resp, err := dns.ParseResponseBounded(respBytes)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := dns.ValidateEcho(query, resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return Response{Packet: resp, Server: server}, nil
}

func queryUDP(ctx context.Context, server string, reqBytes []byte) ([]byte, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "udp", server)
	if err != nil {
		return nil, fmt.Errorf("%w: dial udp %s: %v", ErrDNSClient, server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(reqBytes); err != nil {
		return nil, classifyNetErr(err, server)
	}

	buf := make([]byte, dns.MaxIncomingDNSMessageSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, classifyNetErr(err, server)
	}
	return buf[:n], nil
}

// queryTCP opens a 2-byte length-prefixed TCP DNS connection to server, run
// as its own concurrent attempt alongside queryUDP per spec.md §4.D step 2.
// Grounded verbatim on the teacher's queryUpstreamTCP length-prefix
// framing.
func queryTCP(ctx context.Context, server string, reqBytes []byte) ([]byte, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", server)
	if err != nil {
		return nil, fmt.Errorf("%w: dial tcp %s: %v", ErrDNSClient, server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(reqBytes)))
	if _, err := conn.Write(append(lenPrefix[:], reqBytes...)); err != nil {
		return nil, classifyNetErr(err, server)
	}

	var respLen [2]byte
	if _, err := io.ReadFull(conn, respLen[:]); err != nil {
		return nil, classifyNetErr(err, server)
	}
	n := binary.BigEndian.Uint16(respLen[:])
	if int(n) > dns.MaxIncomingDNSMessageSize {
		return nil, ErrMessageTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, classifyNetErr(err, server)
	}
	return body, nil
}

func classifyNetErr(err error, server string) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, server, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrDNSClient, server, err)
}
