// Package tlsnet wraps tcpnet.Client's byte stream with a TLS handshake:
// certificate selection/validation hooks and a post-handshake "stream is
// actually encrypted" check, per spec.md §4.J. The handshake itself is
// delegated entirely to crypto/tls, layered onto tcpnet.Client via its
// Upgrade seam rather than reimplementing dial-with-timeout.
package tlsnet

import "errors"

// ErrTLS is a package-level sentinel; the errors below are independent
// values and do not wrap it.
var ErrTLS = errors.New("tlsnet")

var (
	// ErrCertificateInvalid is returned when remote certificate
	// validation fails and no ValidateRemoteCert callback overrides the
	// default policy.
	ErrCertificateInvalid = errors.New("tlsnet: certificate invalid")
	// ErrNoLocalCertificate is returned (wrapped together with
	// ErrCertificateInvalid) when the server requests a client certificate,
	// none can be produced, and RequireClientCert is set.
	ErrNoLocalCertificate = errors.New("tlsnet: no local certificate available")
	// ErrNotEncrypted is returned by the post-handshake check if the
	// resulting connection somehow did not complete a TLS handshake.
	ErrNotEncrypted = errors.New("tlsnet: established stream is not encrypted")
)
