// Package dnsclient implements a recursive-lookup DNS client: it races (or,
// optionally, sequentially walks) a list of upstream servers for each
// query, validates the response against the outbound question, and returns
// the first acceptable answer. It does not cache responses and does not
// perform DNSSEC validation — callers needing either should wrap this
// client rather than expect it built in.
package dnsclient

import "errors"

// ErrDNSClient is the sentinel wrapped by this package's general failures
// (dial and I/O errors, query construction, no enabled transport) that
// have no more specific sentinel below. The sentinels below do not wrap it.
var ErrDNSClient = errors.New("dnsclient error")

var (
	// ErrNoServers is returned when a Client has no servers configured and
	// DefaultServers() also failed to discover any.
	ErrNoServers = errors.New("dnsclient: no servers available")

	// ErrAllServersFailed is returned when every server attempted for a
	// query failed (timeout, transport error, or malformed/non-echoing
	// response), aggregating the per-server causes.
	ErrAllServersFailed = errors.New("dnsclient: all servers failed")

	// ErrTimeout is returned by a single-server attempt that exceeded its
	// deadline without a usable response.
	ErrTimeout = errors.New("dnsclient: query timed out")

	// ErrMalformedResponse is returned when a server's reply could not be
	// parsed as a DNS message, or failed the transaction/question echo
	// check.
	ErrMalformedResponse = errors.New("dnsclient: malformed response")

	// ErrMessageTooLarge is returned when an encoded query or a received
	// response exceeds the size bounds this client enforces.
	ErrMessageTooLarge = errors.New("dnsclient: message too large")
)
