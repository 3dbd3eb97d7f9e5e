package dnsname

import (
	"encoding/binary"
	"fmt"
)

// maxCompressionDepth bounds the number of pointer hops followed while
// decoding a single name, guarding against pointer loops in a hostile or
// corrupt message.
const maxCompressionDepth = 20

// isCompressionPointer reports whether the top two bits of b mark it as a
// compression pointer (RFC 1035 §4.1.4: "11" prefix).
func isCompressionPointer(b byte) bool { return b&0xC0 == 0xC0 }

// extendedLabelLen is the length octet (65) RFC 2673 binary labels use; it
// falls inside the otherwise-reserved 0x40-0xBF range and must be preserved
// rather than rejected.
const extendedLabelLen = 65

// reservedLabelLen reports whether b's top bits mark a label length that is
// neither a normal length (00xxxxxx) nor a compression pointer (11xxxxxx),
// with the single carve-out for the extended-label form (length byte 65,
// "01000001").
func reservedLabelLen(b byte) bool {
	if b == extendedLabelLen {
		return false
	}
	top := b & 0xC0
	return top == 0x40 || top == 0x80
}

// Parse decodes a domain name starting at off within msg, following
// compression pointers as needed, and returns the name plus the offset
// immediately after the name's first (non-pointer-following) encoding in
// msg — i.e. the offset the caller should resume parsing from.
func Parse(msg []byte, off int) (Name, int, error) {
	return parseAt(msg, off, map[int]struct{}{}, 0)
}

func parseAt(msg []byte, off int, visited map[int]struct{}, depth int) (Name, int, error) {
	if depth > maxCompressionDepth {
		return Name{}, 0, fmt.Errorf("%w: compression pointer chain too deep", ErrName)
	}
	var labels []string
	firstRealEnd := -1

	for {
		if off >= len(msg) {
			return Name{}, 0, fmt.Errorf("%w: truncated name at offset %d", ErrName, off)
		}
		length := msg[off]

		if length == 0 {
			off++
			if firstRealEnd == -1 {
				firstRealEnd = off
			}
			return Name{Labels: labels}, firstRealEnd, nil
		}

		if isCompressionPointer(length) {
			if off+1 >= len(msg) {
				return Name{}, 0, fmt.Errorf("%w: truncated compression pointer at offset %d", ErrName, off)
			}
			if firstRealEnd == -1 {
				firstRealEnd = off + 2
			}
			ptr := int(binary.BigEndian.Uint16([]byte{msg[off] & 0x3F, msg[off+1]}))
			if _, seen := visited[ptr]; seen {
				return Name{}, 0, fmt.Errorf("%w: compression pointer loop at offset %d", ErrName, ptr)
			}
			visited[ptr] = struct{}{}
			rest, _, err := parseAt(msg, ptr, visited, depth+1)
			if err != nil {
				return Name{}, 0, err
			}
			labels = append(labels, rest.Labels...)
			return Name{Labels: labels}, firstRealEnd, nil
		}

		if reservedLabelLen(length) {
			return Name{}, 0, fmt.Errorf("%w: reserved label length 0x%02x at offset %d", ErrName, length, off)
		}

		if length == extendedLabelLen {
			label, next, err := readExtendedLabel(msg, off)
			if err != nil {
				return Name{}, 0, err
			}
			labels = append(labels, label)
			off = next
			continue
		}

		end := off + 1 + int(length)
		if end > len(msg) {
			return Name{}, 0, fmt.Errorf("%w: label overruns message at offset %d", ErrName, off)
		}
		labels = append(labels, string(msg[off+1:end]))
		off = end
	}
}

// readExtendedLabel decodes an RFC 2673 binary label (length byte 65) into
// the preservation form "\[x<hex>/<bits>]" per the EDNS extended-label rule:
// byte 0 is the length marker (65), byte 1 is the bit count (1-256, with 0
// meaning 256), followed by ceil(bits/8) data bytes.
func readExtendedLabel(msg []byte, off int) (string, int, error) {
	if off+2 > len(msg) {
		return "", 0, fmt.Errorf("%w: truncated extended label at offset %d", ErrName, off)
	}
	bits := int(msg[off+1])
	if bits == 0 {
		bits = 256
	}
	nbytes := (bits + 7) / 8
	dataStart := off + 2
	dataEnd := dataStart + nbytes
	if dataEnd > len(msg) {
		return "", 0, fmt.Errorf("%w: extended label data overruns message at offset %d", ErrName, off)
	}
	hexStr := fmt.Sprintf("%x", msg[dataStart:dataEnd])
	return fmt.Sprintf(`\[x%s/%d]`, hexStr, bits), dataEnd, nil
}

// Encode writes n's wire form (labels + terminating root octet, no
// compression) and returns it. The caller is responsible for ensuring the
// total encoded length does not exceed MaxNameLen when embedding it in a
// message.
func Encode(n Name) ([]byte, error) {
	var total int
	for _, l := range n.Labels {
		total += 1 + len(l)
	}
	total++ // root terminator
	if total > MaxNameLen {
		return nil, fmt.Errorf("%w: encoded name exceeds %d bytes", ErrName, MaxNameLen)
	}
	out := make([]byte, 0, total)
	for _, l := range n.Labels {
		if len(l) == 0 || len(l) > MaxLabelLen-1 {
			return nil, fmt.Errorf("%w: label %q has invalid length", ErrName, l)
		}
		out = append(out, byte(len(l)))
		out = append(out, l...)
	}
	out = append(out, 0)
	return out, nil
}
