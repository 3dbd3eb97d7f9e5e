// Package imapclient implements an RFC 3501 IMAP4rev1 client: tag
// generation, line-by-line response framing with literal support, and the
// LOGIN/SELECT/EXAMINE/LIST/FETCH/SEARCH/STORE/APPEND/EXPUNGE verbs
// spec.md §4.K names. It is built on top of tlsnet.Client (component J),
// which in turn wraps tcpnet.Client (component G) — "K uses J uses G" per
// spec.md §2's data-flow line.
package imapclient

import "errors"

// ErrIMAP is a package-level sentinel; the specific errors below are
// independent values and do not wrap it.
var ErrIMAP = errors.New("imapclient")

var (
	// ErrNotConnected is returned when a command is attempted on a closed
	// or never-dialed connection, or an I/O error occurs mid-command.
	ErrNotConnected = errors.New("imapclient: not connected")
	// ErrBadCredentials is returned when LOGIN is rejected, either locally
	// (non-URL-safe characters) or by the server (NO/BAD response).
	ErrBadCredentials = errors.New("imapclient: bad credentials")
	// ErrBadResponse is returned when a server line cannot be parsed as
	// valid IMAP framing (missing literal, malformed greeting, ...).
	ErrBadResponse = errors.New("imapclient: bad response")
	// ErrCommandFailed wraps a server-side NO/BAD completion, carrying the
	// verbatim response line with the tag stripped (spec.md §7).
	ErrCommandFailed = errors.New("imapclient: command failed")
	// ErrTimedOut is returned when a read or write exceeds its deadline.
	ErrTimedOut = errors.New("imapclient: timed out")
	// ErrTagSpaceExhausted is returned once the two-hex-digit tag counter
	// wraps past "ff" (spec.md §4.K: "wrap is a fatal error").
	ErrTagSpaceExhausted = errors.New("imapclient: tag space exhausted")
	// ErrInvalidArgument is returned for malformed caller input: non-ASCII
	// SEARCH string arguments, malformed connection strings, and so on.
	ErrInvalidArgument = errors.New("imapclient: invalid argument")
)
