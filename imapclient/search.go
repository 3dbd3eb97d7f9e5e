package imapclient

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key is one node of a composite SEARCH expression (spec.md §6):
// conjunction is space juxtaposition (see And), disjunction is OR.
// Key values are built with the package-level constructors below, never
// directly.
type Key struct {
	render func() string
	err    error
}

func renderKey(k Key) string {
	if k.render == nil {
		return ""
	}
	return k.render()
}

func lit(s string) Key { return Key{render: func() string { return s }} }

// ALL, ANSWERED, ... (RFC 3501 §6.4.4 flag-only search keys, no argument).
func All() Key        { return lit("ALL") }
func Answered() Key   { return lit("ANSWERED") }
func Deleted() Key    { return lit("DELETED") }
func Draft() Key      { return lit("DRAFT") }
func Flagged() Key    { return lit("FLAGGED") }
func NewMessages() Key { return lit("NEW") }
func Old() Key        { return lit("OLD") }
func Recent() Key     { return lit("RECENT") }
func Seen() Key       { return lit("SEEN") }
func Unanswered() Key { return lit("UNANSWERED") }
func Undeleted() Key  { return lit("UNDELETED") }
func Undraft() Key    { return lit("UNDRAFT") }
func Unflagged() Key  { return lit("UNFLAGGED") }
func Unseen() Key     { return lit("UNSEEN") }

// validateASCII enforces spec.md §6's caller-boundary rule: "Strings are
// validated to be pure US-ASCII at the caller boundary."
func validateASCII(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return fmt.Errorf("%w: search argument %q is not pure US-ASCII", ErrInvalidArgument, s)
		}
	}
	return nil
}

func quoteASCIIString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' || ch == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	b.WriteByte('"')
	return b.String()
}

func strArg(name, s string) Key {
	if err := validateASCII(s); err != nil {
		return Key{err: err}
	}
	return Key{render: func() string { return name + " " + quoteASCIIString(s) }}
}

func BCC(s string) Key      { return strArg("BCC", s) }
func CCKey(s string) Key    { return strArg("CC", s) }
func BodyText(s string) Key { return strArg("BODY", s) }
func From(s string) Key     { return strArg("FROM", s) }
func Subject(s string) Key  { return strArg("SUBJECT", s) }
func TextKey(s string) Key  { return strArg("TEXT", s) }
func To(s string) Key       { return strArg("TO", s) }
func Keyword(flag string) Key   { return strArg("KEYWORD", flag) }
func UnKeyword(flag string) Key { return strArg("UNKEYWORD", flag) }

// Header builds HEADER field text.
func Header(field, text string) Key {
	if err := validateASCII(field); err != nil {
		return Key{err: err}
	}
	if err := validateASCII(text); err != nil {
		return Key{err: err}
	}
	return Key{render: func() string {
		return "HEADER " + quoteASCIIString(field) + " " + quoteASCIIString(text)
	}}
}

// dateArg formats dates as RFC 3501's "d-mmm-yyyy" with an uppercase-
// initial month abbreviation. Go's "2-Jan-2006" reference layout already
// capitalizes the month, which is the bug fix spec.md §9 calls for versus
// the source's lowercase rendering — no extra work is needed to get it
// right here.
func dateArg(name string, t time.Time) Key {
	return Key{render: func() string { return name + " " + t.Format("2-Jan-2006") }}
}

func Before(t time.Time) Key     { return dateArg("BEFORE", t) }
func On(t time.Time) Key         { return dateArg("ON", t) }
func SentBefore(t time.Time) Key { return dateArg("SENTBEFORE", t) }
func SentOn(t time.Time) Key     { return dateArg("SENTON", t) }
func SentSince(t time.Time) Key  { return dateArg("SENTSINCE", t) }
func Since(t time.Time) Key      { return dateArg("SINCE", t) }

func sizeArg(name string, n int) Key {
	return Key{render: func() string { return fmt.Sprintf("%s %d", name, n) }}
}

func Larger(n int) Key  { return sizeArg("LARGER", n) }
func Smaller(n int) Key { return sizeArg("SMALLER", n) }

// UIDSeq builds a UID search key from a raw sequence-set string, e.g.
// "1:5,9".
func UIDSeq(seq string) Key {
	if err := validateASCII(seq); err != nil {
		return Key{err: err}
	}
	return Key{render: func() string { return "UID " + seq }}
}

func firstErr(keys ...Key) error {
	for _, k := range keys {
		if k.err != nil {
			return k.err
		}
	}
	return nil
}

// Not negates a key.
func Not(k Key) Key {
	if k.err != nil {
		return Key{err: k.err}
	}
	return Key{render: func() string { return "NOT " + renderKey(k) }}
}

// Or disjoins two keys.
func Or(a, b Key) Key {
	if err := firstErr(a, b); err != nil {
		return Key{err: err}
	}
	return Key{render: func() string { return "OR " + renderKey(a) + " " + renderKey(b) }}
}

// And juxtaposes keys with spaces, RFC 3501's implicit conjunction.
func And(keys ...Key) Key {
	if err := firstErr(keys...); err != nil {
		return Key{err: err}
	}
	return Key{render: func() string {
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = renderKey(k)
		}
		return strings.Join(parts, " ")
	}}
}

// Search issues SEARCH key and parses the resulting "* SEARCH n1 n2 ..."
// line(s) into a number sequence.
func (c *Client) Search(key Key) ([]uint32, error) {
	if key.err != nil {
		return nil, key.err
	}
	_, untagged, result, err := c.runCommand("SEARCH " + renderKey(key))
	if err != nil {
		return nil, err
	}
	if err := checkOK(result); err != nil {
		return nil, err
	}
	var nums []uint32
	for _, line := range untagged {
		body := strings.TrimPrefix(line, "* ")
		if !strings.HasPrefix(body, "SEARCH") {
			continue
		}
		for _, field := range strings.Fields(strings.TrimPrefix(body, "SEARCH")) {
			v, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				continue
			}
			nums = append(nums, uint32(v))
		}
	}
	return nums, nil
}
