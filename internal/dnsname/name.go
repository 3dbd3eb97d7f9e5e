// Package dnsname implements domain name parsing, encoding, comparison and
// reverse-lookup zone derivation, independent of any particular DNS message
// layout (that lives in package dns). Names are stored as an ordered
// sequence of labels; the root name is the empty sequence.
package dnsname

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// ErrName is the sentinel wrapped by every domain-name parsing error.
var ErrName = errors.New("dnsname: invalid name")

// MaxLabelLen is one more than the longest label accepted: a label is at
// most MaxLabelLen-1 (63) octets (RFC 1035 §3.1).
const MaxLabelLen = 64

// MaxNameLen is the maximum length of an encoded name, including length
// octets and the terminating root label.
const MaxNameLen = 255

// Name is an ordered sequence of labels. The root name is Name{} (length 0).
// Labels containing non-ASCII characters are always stored in their ACE
// (Punycode, "xn--…") form — see TryParse.
type Name struct {
	Labels []string
}

// Root is the zero-label name.
func Root() Name { return Name{} }

// String renders the name in dotted form with a trailing dot, e.g.
// "example.com.". The root name renders as ".".
func (n Name) String() string {
	if len(n.Labels) == 0 {
		return "."
	}
	return strings.Join(n.Labels, ".") + "."
}

// Equal compares two names case-insensitively over their joined form, per
// DNS name-comparison rules (RFC 4343).
func (n Name) Equal(other Name) bool {
	if len(n.Labels) != len(other.Labels) {
		return false
	}
	for i := range n.Labels {
		if !strings.EqualFold(n.Labels[i], other.Labels[i]) {
			return false
		}
	}
	return true
}

// IsRoot reports whether n has no labels.
func (n Name) IsRoot() bool { return len(n.Labels) == 0 }

var idnaProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
)

// TryParse splits s on unescaped '.' into labels. Each label longer than
// MaxLabelLen-1 (63 octets) is rejected. Non-ASCII labels are converted to their ACE
// (Punycode) form via the IDNA profile before the length check, satisfying
// the invariant that any label containing non-ASCII is stored as ACE.
func TryParse(s string) (Name, error) {
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return Root(), nil
	}
	rawLabels := splitUnescaped(s)
	labels := make([]string, 0, len(rawLabels))
	for _, raw := range rawLabels {
		if raw == "" {
			return Name{}, fmt.Errorf("%w: empty label in %q", ErrName, s)
		}
		label := raw
		if !isASCII(raw) {
			ace, err := idnaProfile.ToASCII(raw)
			if err != nil {
				return Name{}, fmt.Errorf("%w: IDNA encode of label %q: %v", ErrName, raw, err)
			}
			label = ace
		}
		if len(label) > MaxLabelLen-1 {
			return Name{}, fmt.Errorf("%w: label %q exceeds %d bytes", ErrName, label, MaxLabelLen-1)
		}
		if !isValidLabelCharset(label) {
			return Name{}, fmt.Errorf("%w: label %q has invalid characters", ErrName, label)
		}
		labels = append(labels, label)
	}
	return Name{Labels: labels}, nil
}

// splitUnescaped splits on '.' that is not preceded by a backslash escape.
func splitUnescaped(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++ // skip escaped char
			continue
		}
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func isASCII(s string) bool {
	for i := range len(s) {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}

// isValidLabelCharset accepts ASCII letters/digits/'_'/'-', and the
// "\[x<hex>/<bits>]" extended-label preservation form produced when
// decoding an RFC 2673 binary label.
func isValidLabelCharset(label string) bool {
	if strings.HasPrefix(label, `\[`) {
		return true
	}
	for i := range len(label) {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// ReverseLookupZone returns the in-addr.arpa (IPv4) or ip6.arpa (IPv6) name
// used for PTR lookups of ip.
func ReverseLookupZone(ip net.IP) (Name, error) {
	if v4 := ip.To4(); v4 != nil {
		labels := make([]string, 0, 6)
		for i := len(v4) - 1; i >= 0; i-- {
			labels = append(labels, fmt.Sprintf("%d", v4[i]))
		}
		labels = append(labels, "in-addr", "arpa")
		return Name{Labels: labels}, nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return Name{}, fmt.Errorf("%w: not a valid IP address", ErrName)
	}
	labels := make([]string, 0, 34)
	hex := "0123456789abcdef"
	for i := len(v6) - 1; i >= 0; i-- {
		b := v6[i]
		labels = append(labels, string(hex[b&0x0F]), string(hex[b>>4]))
	}
	labels = append(labels, "ip6", "arpa")
	return Name{Labels: labels}, nil
}
