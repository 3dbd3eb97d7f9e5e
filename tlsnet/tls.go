package tlsnet

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jroosing/hydranet/tcpnet"
)

// ValidationError is a bitmask of the reasons a remote certificate failed
// validation, surfaced to ValidateRemoteCert per spec.md §4.J so a caller
// can inspect (and override) exactly which check(s) failed.
type ValidationError uint32

const (
	// ValidationErrorNotYetValid means now < certificate.NotBefore.
	ValidationErrorNotYetValid ValidationError = 1 << iota
	// ValidationErrorNoLongerValid means now > certificate.NotAfter.
	ValidationErrorNoLongerValid
	// ValidationErrorChainInvalid means the platform's x509 chain
	// verification reported an error other than plain expiry (unknown
	// authority, name mismatch, revocation, ...).
	ValidationErrorChainInvalid
)

func (v ValidationError) String() string {
	if v == 0 {
		return "none"
	}
	s := ""
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if v&ValidationErrorNotYetValid != 0 {
		add("NotYetValid")
	}
	if v&ValidationErrorNoLongerValid != 0 {
		add("NoLongerValid")
	}
	if v&ValidationErrorChainInvalid != 0 {
		add("ChainInvalid")
	}
	return s
}

// Config configures the TLS handshake Connect performs on top of the
// tcpnet.Client it wraps.
type Config struct {
	// ServerName is checked against the peer certificate's DNS names and
	// sent in the SNI extension. When empty, the host part of the dialed
	// peer address is used.
	ServerName string

	// RootCAs validates the peer chain; the platform system pool is used
	// when nil (spec.md §4.J: "let the OS negotiate").
	RootCAs *x509.CertPool

	// Certificates are the local candidates offered if the server
	// requests client authentication.
	Certificates []tls.Certificate

	// SelectLocalCert picks among Certificates when the server requests
	// one. When nil, the first entry of Certificates is used; if
	// Certificates is empty, or SelectLocalCert returns nil, no client
	// certificate is offered, and the client fails the handshake with
	// ErrNoLocalCertificate only when RequireClientCert is set (spec.md §4.J's "select local cert"
	// hook).
	SelectLocalCert func(requested *tls.CertificateRequestInfo, candidates []tls.Certificate) (*tls.Certificate, error)

	// ValidateRemoteCert overrides the default accept/deny policy for the
	// peer certificate. validationErrors is the bitmask this package
	// computed (NotYetValid/NoLongerValid plus the platform chain
	// result); the default (nil) policy accepts iff validationErrors==0.
	ValidateRemoteCert func(leaf *x509.Certificate, validationErrors ValidationError) bool

	// RequireClientCert, when true, fails the handshake locally if no
	// local certificate can be produced for a server's request, rather
	// than silently proceeding without one.
	RequireClientCert bool

	// HandshakeTimeout bounds the TLS handshake itself, separate from
	// tcpnet.Client's ConnectTimeout which bounds the TCP dial.
	HandshakeTimeout time.Duration
}

const defaultHandshakeTimeout = 10 * time.Second

// Client wraps a tcpnet.Client, performing a TLS handshake against the
// freshly dialed socket before the receive/send pumps start. All of
// tcpnet.Client's public surface (Send, SendAsync, GetStream, event
// listeners, Close) is available via the embedded field once Connect
// returns.
type Client struct {
	*tcpnet.Client

	cfg   Config
	state tls.ConnectionState
}

// NewClient creates a Client ready to Connect.
func NewClient(cfg Config) *Client {
	return &Client{Client: tcpnet.NewClient(), cfg: cfg}
}

// Connect dials host:port, then performs a TLS handshake as a client
// against the configured ServerName, per spec.md §4.J. On success the
// wrapped tcpnet.Client's Send/Receive pipeline operates over the
// encrypted stream transparently.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.Client.Upgrade = c.upgrade
	return c.Client.Connect(ctx, host, port)
}

// ConnectionState returns the negotiated TLS connection state captured
// after a successful handshake.
func (c *Client) ConnectionState() tls.ConnectionState { return c.state }

func (c *Client) upgrade(ctx context.Context, conn net.Conn) (net.Conn, error) {
	serverName := c.cfg.ServerName
	if serverName == "" {
		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		if err == nil {
			serverName = host
		}
	}

	tlsCfg := &tls.Config{
		ServerName:            serverName,
		RootCAs:               c.cfg.RootCAs,
		Certificates:          c.cfg.Certificates,
		InsecureSkipVerify:    true, // we perform chain verification ourselves, see VerifyPeerCertificate
		GetClientCertificate:  c.getClientCertificate,
		VerifyPeerCertificate: c.verifyPeerCertificate(serverName),
	}

	timeout := c.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tlsConn := tls.Client(conn, tlsCfg)
	if deadline, ok := hctx.Deadline(); ok {
		_ = tlsConn.SetDeadline(deadline)
	}
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		return nil, fmt.Errorf("%w: handshake: %w", ErrCertificateInvalid, err)
	}
	_ = tlsConn.SetDeadline(time.Time{})

	state := tlsConn.ConnectionState()
	if !state.HandshakeComplete {
		return nil, ErrNotEncrypted
	}
	c.state = state

	return tlsConn, nil
}

func (c *Client) getClientCertificate(info *tls.CertificateRequestInfo) (*tls.Certificate, error) {
	if len(c.cfg.Certificates) == 0 {
		if c.cfg.RequireClientCert {
			return nil, ErrNoLocalCertificate
		}
		return &tls.Certificate{}, nil
	}
	if c.cfg.SelectLocalCert != nil {
		cert, err := c.cfg.SelectLocalCert(info, c.cfg.Certificates)
		if err != nil {
			return nil, err
		}
		if cert == nil {
			if c.cfg.RequireClientCert {
				return nil, ErrNoLocalCertificate
			}
			return &tls.Certificate{}, nil
		}
		return cert, nil
	}
	return &c.cfg.Certificates[0], nil
}

// verifyPeerCertificate builds the staged validate-remote-cert hook
// described in spec.md §4.J: compute NotYetValid/NoLongerValid ourselves
// (so the default policy still sees them even though InsecureSkipVerify
// is set), run the platform chain policy, then give ValidateRemoteCert a
// chance to override the combined verdict.
func (c *Client) verifyPeerCertificate(serverName string) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("%w: server presented no certificate", ErrCertificateInvalid)
		}
		certs := make([]*x509.Certificate, len(rawCerts))
		for i, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("%w: parse certificate %d: %v", ErrCertificateInvalid, i, err)
			}
			certs[i] = cert
		}
		leaf := certs[0]

		var verr ValidationError
		now := time.Now()
		if now.Before(leaf.NotBefore) {
			verr |= ValidationErrorNotYetValid
		}
		if now.After(leaf.NotAfter) {
			verr |= ValidationErrorNoLongerValid
		}

		roots := c.cfg.RootCAs
		if roots == nil {
			roots, _ = x509.SystemCertPool()
		}
		intermediates := x509.NewCertPool()
		for _, cert := range certs[1:] {
			intermediates.AddCert(cert)
		}
		if _, err := leaf.Verify(x509.VerifyOptions{
			DNSName:       serverName,
			Roots:         roots,
			Intermediates: intermediates,
		}); err != nil {
			var invalid x509.CertificateInvalidError
			if !errors.As(err, &invalid) || invalid.Reason != x509.Expired {
				verr |= ValidationErrorChainInvalid
			}
		}

		accept := verr == 0
		if c.cfg.ValidateRemoteCert != nil {
			accept = c.cfg.ValidateRemoteCert(leaf, verr)
		}
		if !accept {
			return fmt.Errorf("%w: %s", ErrCertificateInvalid, verr)
		}
		return nil
	}
}
