package dns

import (
	"fmt"
)

// Limits applied to DNS responses accepted by the client, re-purposed from
// the teacher's server-side request bounding (ParseRequestBounded) — the
// same resource-exhaustion concern applies symmetrically to an unbounded
// or hostile response.
const (
	MaxIncomingDNSMessageSize = 4096 // Maximum size of an accepted DNS message
	MaxQuestions              = 4    // Maximum questions accepted in a single message
	MaxRRPerSection           = 100  // Maximum resource records per section
	MaxTotalRR                = 200  // Maximum total resource records
)

// ParseResponseBounded parses a DNS response enforcing the resource limits
// above, failing before any parsing is attempted if msg itself is oversized.
func ParseResponseBounded(msg []byte) (Packet, error) {
	if len(msg) > MaxIncomingDNSMessageSize {
		return Packet{}, fmt.Errorf("%w: response too large (%d > %d bytes)", ErrDNSError, len(msg), MaxIncomingDNSMessageSize)
	}
	p, err := ParsePacket(msg)
	if err != nil {
		return Packet{}, err
	}
	if err := validateSectionCounts(p.Header); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// validateSectionCounts checks that section counts don't exceed limits.
func validateSectionCounts(h Header) error {
	qd := int(h.QDCount)
	an := int(h.ANCount)
	ns := int(h.NSCount)
	ar := int(h.ARCount)

	if qd > MaxQuestions {
		return fmt.Errorf("%w: too many questions", ErrDNSError)
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return fmt.Errorf("%w: too many resource records", ErrDNSError)
	}
	if (an + ns + ar) > MaxTotalRR {
		return fmt.Errorf("%w: too many total resource records", ErrDNSError)
	}
	return nil
}

// ValidateEcho checks that a response packet actually answers the query it
// is matched against: the transaction ID and the first question's name,
// type and class must echo the query exactly (RFC 1035 §7.3, an
// anti-cache-poisoning check). This is the client-side analogue of the
// teacher's server-side ParseRequestBounded QR/opcode checks, re-targeted
// at validating responses instead of incoming requests.
func ValidateEcho(query, response Packet) error {
	if response.Header.ID != query.Header.ID {
		return fmt.Errorf("%w: transaction id mismatch: got %d want %d", ErrDNSError, response.Header.ID, query.Header.ID)
	}
	if !isResponse(response.Header.Flags) {
		return fmt.Errorf("%w: QR flag not set on response", ErrDNSError)
	}
	if len(query.Questions) == 0 {
		return fmt.Errorf("%w: query has no question to validate against", ErrDNSError)
	}
	if len(response.Questions) == 0 {
		return fmt.Errorf("%w: response echoes no question", ErrDNSError)
	}
	q, a := query.Questions[0], response.Questions[0]
	if !equalDNSNames(q.Name, a.Name) || q.Type != a.Type || q.Class != a.Class {
		return fmt.Errorf("%w: response question does not echo query", ErrDNSError)
	}
	return nil
}

// isResponse checks if the QR flag is set (indicating a response packet).
func isResponse(flags uint16) bool {
	return (flags & QRFlag) != 0
}

// equalDNSNames compares two DNS names case-insensitively after
// normalization (RFC 4343).
func equalDNSNames(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
