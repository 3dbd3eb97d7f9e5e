package dns

import (
	"strings"

	"github.com/jroosing/hydranet/internal/dnsname"
)

// NormalizeName returns a lowercase DNS name without trailing dots.
// This is useful for case-insensitive DNS name comparisons per RFC 4343.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// EncodeName encodes a domain name to DNS wire format (RFC 1035 Section
// 3.1), delegating label splitting, length validation and IDNA ACE
// encoding to internal/dnsname. This implementation does NOT perform
// message compression (pointers); Packet.Marshal does not need it since
// every name it emits is written out in full.
func EncodeName(domain string) ([]byte, error) {
	n, err := dnsname.TryParse(domain)
	if err != nil {
		return nil, err
	}
	return dnsname.Encode(n)
}

// DecodeName decodes a possibly-compressed DNS name from wire format
// (RFC 1035 Section 4.1.4), delegating to internal/dnsname.Parse for
// compression-pointer following and RFC 2673 extended-label preservation.
// It advances *off past the name's first encoding in msg.
func DecodeName(msg []byte, off *int) (string, error) {
	n, next, err := dnsname.Parse(msg, *off)
	if err != nil {
		return "", err
	}
	*off = next
	if n.IsRoot() {
		return "", nil
	}
	return strings.Join(n.Labels, "."), nil
}
