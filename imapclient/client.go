package imapclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jroosing/hydranet/tcpnet"
	"github.com/jroosing/hydranet/tlsnet"
)

// DefaultReadTimeout and DefaultWriteTimeout bound a single line read/write
// when Client.ReadTimeout/WriteTimeout are zero.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// MailboxInfo is the result of SELECT/EXAMINE, mutated only while parsing
// that command's untagged response lines (spec.md §3).
type MailboxInfo struct {
	Name           string
	Recent         int
	Exist          int
	Flags          []string
	PermanentFlags []string
	UIDValidity    uint32
	UIDNext        uint32
	Unseen         int
}

// Equal implements field equality only, per spec.md §9's Open Question
// decision: the source's Equals mixed reference-base equality with field
// compares, which this client does not reproduce.
func (m MailboxInfo) Equal(other MailboxInfo) bool {
	return m.Name == other.Name &&
		m.Recent == other.Recent &&
		m.Exist == other.Exist &&
		equalStrings(m.Flags, other.Flags) &&
		equalStrings(m.PermanentFlags, other.PermanentFlags) &&
		m.UIDValidity == other.UIDValidity &&
		m.UIDNext == other.UIDNext &&
		m.Unseen == other.Unseen
}

// Hash is consistent with Equal: equal MailboxInfo values always hash
// equal, satisfying the equals/hashCode contract spec.md §8 scenario 5
// tests for.
func (m MailboxInfo) Hash() uint64 {
	h := fnvOffset
	h = fnvStep(h, m.Name)
	h = fnvStepUint(h, uint64(m.Recent))
	h = fnvStepUint(h, uint64(m.Exist))
	for _, f := range m.Flags {
		h = fnvStep(h, f)
	}
	for _, f := range m.PermanentFlags {
		h = fnvStep(h, f)
	}
	h = fnvStepUint(h, uint64(m.UIDValidity))
	h = fnvStepUint(h, uint64(m.UIDNext))
	h = fnvStepUint(h, uint64(m.Unseen))
	return h
}

const fnvOffset uint64 = 14695981039346656037
const fnvPrime uint64 = 1099511628211

func fnvStep(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime
	}
	return h
}

func fnvStepUint(h uint64, v uint64) uint64 {
	for i := 0; i < 8; i++ {
		h ^= v & 0xff
		h *= fnvPrime
		v >>= 8
	}
	return h
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String keeps the source's documented behavior (spec.md §9): it claims a
// bracketed "Name [Recent] [Exist]" format but in fact emits bracketless
// body text. That current behavior is kept, not "fixed" — only the SEARCH
// date format and the NTP server's OnAnswer gating are flagged as bugs to
// fix in spec.md.
func (m MailboxInfo) String() string {
	return fmt.Sprintf("%s %d %d", m.Name, m.Recent, m.Exist)
}

// ListEntry is one line of a LIST response.
type ListEntry struct {
	Flags     []string
	Delimiter string
	Name      string
}

// connLike is the minimal connection surface Client needs. net.Conn
// satisfies it directly, for callers that hand Client a raw or
// already-upgraded socket. Dial instead adapts a tcpnet.Stream to it: by
// the time Dial gets a chance to read anything, tcpnet.Client.Connect has
// already started a background recvPump draining the socket into the
// stream's receive FIFO, so reading the raw net.Conn concurrently would
// race that pump for the same bytes. Going through the Stream keeps
// Client's single reader downstream of the FIFO instead.
type connLike interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// streamConn adapts a *tcpnet.Stream to connLike, translating the
// absolute deadlines Client sets per call into the Stream's rolling
// ReadTimeout/WriteTimeout durations.
type streamConn struct {
	s *tcpnet.Stream
}

func (sc streamConn) Read(b []byte) (int, error)  { return sc.s.Read(b) }
func (sc streamConn) Write(b []byte) (int, error) { return sc.s.Write(b) }
func (sc streamConn) Close() error                { return sc.s.Close() }

func (sc streamConn) SetReadDeadline(t time.Time) error {
	sc.s.ReadTimeout = timeoutUntil(t)
	return nil
}

func (sc streamConn) SetWriteDeadline(t time.Time) error {
	sc.s.WriteTimeout = timeoutUntil(t)
	return nil
}

// timeoutUntil converts an absolute deadline (as net.Conn's
// SetReadDeadline/SetWriteDeadline take) into the rolling duration
// tcpnet.Stream expects; a zero deadline clears back to the Stream's
// default.
func timeoutUntil(t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	if d := time.Until(t); d > 0 {
		return d
	}
	return time.Millisecond
}

// Client is a single-connection IMAP4rev1 session. Per spec.md §5, the
// caller must not issue overlapping commands on one Client — the internal
// mutex enforces "one command at a time" rather than leaving it purely as
// a documented caller contract.
type Client struct {
	conn connLike
	br   *bufio.Reader

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	mu           sync.Mutex
	tagCounter   int
	tagExhausted bool
	greetingDone bool
}

// NewClient wraps an already-established connection (a plaintext or
// already-upgraded net.Conn that nothing else reads from) as an IMAP
// session. A tlsnet.Client/tcpnet.Client connection goes through Dial
// instead, since its raw net.Conn is already drained by a receive pump.
func NewClient(conn connLike) *Client {
	return &Client{conn: conn, br: bufio.NewReader(conn)}
}

// Dial connects through tlsnet.Client (component J) and wraps the
// resulting encrypted stream, matching spec.md §2's "K uses J uses G"
// data flow. It reads and writes through the client's Stream rather than
// its raw net.Conn, since Connect has already started a background pump
// reading the raw socket into the stream's FIFO — a second direct reader
// on the same conn would race it for bytes.
func Dial(ctx context.Context, host string, port int, cfg tlsnet.Config) (*Client, error) {
	tc := tlsnet.NewClient(cfg)
	if err := tc.Connect(ctx, host, port); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	stream := tc.GetStream()
	if err := stream.SetDirectWrites(true); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return NewClient(streamConn{s: stream}), nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readTimeout() time.Duration {
	if c.ReadTimeout > 0 {
		return c.ReadTimeout
	}
	return DefaultReadTimeout
}

func (c *Client) writeTimeout() time.Duration {
	if c.WriteTimeout > 0 {
		return c.WriteTimeout
	}
	return DefaultWriteTimeout
}

// nextTag advances the monotonic two-hex-digit tag counter. Wrapping past
// "ff" is a fatal error per spec.md §4.K ("wrap is a fatal error —
// implementer may widen"); this client surfaces it as ErrTagSpaceExhausted
// rather than widening, leaving that as the implementer's documented
// option.
func (c *Client) nextTag() (string, error) {
	if c.tagExhausted {
		return "", ErrTagSpaceExhausted
	}
	tag := fmt.Sprintf("%02x", c.tagCounter)
	c.tagCounter++
	if c.tagCounter > 0xff {
		c.tagExhausted = true
	}
	return tag, nil
}

func (c *Client) send(line string) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
	_, err := io.WriteString(c.conn, line)
	return err
}

// readLine reads one CRLF-terminated line, treating the wire bytes as
// ISO-8859-1 (ASCII-transparent, so no decoding step beyond stripping the
// terminator is needed for the protocol framing itself).
func (c *Client) readLine() (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout()))
	line, err := c.br.ReadString('\n')
	if err != nil {
		return "", classifyReadErr(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func classifyReadErr(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimedOut, err)
	}
	return fmt.Errorf("%w: %v", ErrNotConnected, err)
}

func isCompletionLine(s string) bool {
	return strings.HasPrefix(s, "OK") || strings.HasPrefix(s, "NO") || strings.HasPrefix(s, "BAD")
}

// readUntilTagged collects untagged ("* ...") lines until one begins with
// "<tag> OK|NO|BAD", per spec.md §4.K's tagged-completion framing.
func (c *Client) readUntilTagged(tag string) (untagged []string, result string, err error) {
	prefix := tag + " "
	for {
		line, err := c.readLine()
		if err != nil {
			return untagged, "", err
		}
		if strings.HasPrefix(line, prefix) {
			rest := line[len(prefix):]
			if isCompletionLine(rest) {
				return untagged, rest, nil
			}
		}
		untagged = append(untagged, line)
	}
}

// runCommand sends "<tag> <command>\r\n" and reads the response up to its
// tagged completion. It takes the client-wide lock itself, implementing
// spec.md §5's "one command at a time" contract rather than leaving it to
// callers.
func (c *Client) runCommand(command string) (tag string, untagged []string, result string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runCommandLocked(command)
}

func (c *Client) runCommandLocked(command string) (tag string, untagged []string, result string, err error) {
	tag, err = c.nextTag()
	if err != nil {
		return "", nil, "", err
	}
	if err := c.send(tag + " " + command + "\r\n"); err != nil {
		return tag, nil, "", fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	untagged, result, err = c.readUntilTagged(tag)
	return tag, untagged, result, err
}

func checkOK(result string) error {
	if strings.HasPrefix(result, "OK") {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCommandFailed, result)
}

// ensureGreeting consumes the server's initial "* OK ..." banner exactly
// once. Called lazily from Login so Dial/NewClient callers that only want
// the raw connection (e.g. to drive STARTTLS themselves) are not forced
// to read it up front.
func (c *Client) ensureGreeting() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.greetingDone {
		return nil
	}
	line, err := c.readLine()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "* ") {
		return fmt.Errorf("%w: unexpected greeting %q", ErrBadResponse, line)
	}
	if strings.HasPrefix(line, "* BYE") {
		return fmt.Errorf("%w: server closed during greeting: %s", ErrCommandFailed, line)
	}
	c.greetingDone = true
	return nil
}

var nonURLSafe = regexp.MustCompile(`[^A-Za-z0-9\-_.~]`)

// Login authenticates, rejecting non-URL-safe characters in user/password
// locally before ever transmitting them (spec.md §4.K), and reading the
// server greeting first if it has not been consumed yet.
func (c *Client) Login(user, password string) error {
	if err := c.ensureGreeting(); err != nil {
		return err
	}
	if nonURLSafe.MatchString(user) || nonURLSafe.MatchString(password) {
		return fmt.Errorf("%w: credentials contain non-URL-safe characters", ErrBadCredentials)
	}
	_, _, result, err := c.runCommand(fmt.Sprintf("LOGIN %s %s", user, password))
	if err != nil {
		return err
	}
	if err := checkOK(result); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	return nil
}

// Logout sends LOGOUT and reads its completion.
func (c *Client) Logout() error {
	_, _, result, err := c.runCommand("LOGOUT")
	if err != nil {
		return err
	}
	return checkOK(result)
}

var (
	reExists       = regexp.MustCompile(`^(\d+) EXISTS$`)
	reRecent       = regexp.MustCompile(`^(\d+) RECENT$`)
	reFlags        = regexp.MustCompile(`^FLAGS \((.*)\)$`)
	rePermFlags    = regexp.MustCompile(`\[PERMANENTFLAGS \(([^)]*)\)\]`)
	reUIDValidity  = regexp.MustCompile(`\[UIDVALIDITY (\d+)\]`)
	reUIDNext      = regexp.MustCompile(`\[UIDNEXT (\d+)\]`)
	reUnseenStatus = regexp.MustCompile(`\[UNSEEN (\d+)\]`)
)

func splitFlags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}

func parseMailboxInfo(name string, untagged []string) MailboxInfo {
	info := MailboxInfo{Name: name}
	for _, line := range untagged {
		body := strings.TrimPrefix(line, "* ")
		switch {
		case reExists.MatchString(body):
			m := reExists.FindStringSubmatch(body)
			info.Exist, _ = strconv.Atoi(m[1])
		case reRecent.MatchString(body):
			m := reRecent.FindStringSubmatch(body)
			info.Recent, _ = strconv.Atoi(m[1])
		case reFlags.MatchString(body):
			m := reFlags.FindStringSubmatch(body)
			info.Flags = splitFlags(m[1])
		default:
			if m := rePermFlags.FindStringSubmatch(body); m != nil {
				info.PermanentFlags = splitFlags(m[1])
			}
			if m := reUIDValidity.FindStringSubmatch(body); m != nil {
				v, _ := strconv.ParseUint(m[1], 10, 32)
				info.UIDValidity = uint32(v)
			}
			if m := reUIDNext.FindStringSubmatch(body); m != nil {
				v, _ := strconv.ParseUint(m[1], 10, 32)
				info.UIDNext = uint32(v)
			}
			if m := reUnseenStatus.FindStringSubmatch(body); m != nil {
				v, _ := strconv.Atoi(m[1])
				info.Unseen = v
			}
		}
	}
	return info
}

// Select issues SELECT, leaving the mailbox open read-write.
func (c *Client) Select(mailbox string) (MailboxInfo, error) {
	return c.selectLike("SELECT", mailbox)
}

// Examine issues EXAMINE, the read-only counterpart of Select.
func (c *Client) Examine(mailbox string) (MailboxInfo, error) {
	return c.selectLike("EXAMINE", mailbox)
}

func (c *Client) selectLike(verb, mailbox string) (MailboxInfo, error) {
	_, untagged, result, err := c.runCommand(fmt.Sprintf(`%s "%s"`, verb, encodeMailboxName(mailbox)))
	if err != nil {
		return MailboxInfo{}, err
	}
	if err := checkOK(result); err != nil {
		return MailboxInfo{}, err
	}
	return parseMailboxInfo(mailbox, untagged), nil
}

var reList = regexp.MustCompile(`^LIST \(([^)]*)\) "([^"]*)" (.+)$`)

// ListMailboxes issues LIST "" "*" and decodes each mailbox name from
// modified UTF-7 (RFC 3501 §5.1.3).
func (c *Client) ListMailboxes() ([]ListEntry, error) {
	_, untagged, result, err := c.runCommand(`LIST "" "*"`)
	if err != nil {
		return nil, err
	}
	if err := checkOK(result); err != nil {
		return nil, err
	}
	var entries []ListEntry
	for _, line := range untagged {
		body := strings.TrimPrefix(line, "* ")
		m := reList.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		rawName := strings.Trim(strings.TrimSpace(m[3]), `"`)
		name, err := decodeMailboxName(rawName)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ListEntry{
			Flags:     splitFlags(m[1]),
			Delimiter: m[2],
			Name:      name,
		})
	}
	return entries, nil
}

// Create issues CREATE for a new mailbox.
func (c *Client) Create(mailbox string) error {
	_, _, result, err := c.runCommand(fmt.Sprintf(`CREATE "%s"`, encodeMailboxName(mailbox)))
	if err != nil {
		return err
	}
	return checkOK(result)
}

// Store issues STORE seq item, e.g. Store(4, `+FLAGS (\Seen)`).
func (c *Client) Store(seq int, item string) error {
	_, _, result, err := c.runCommand(fmt.Sprintf("STORE %d %s", seq, item))
	if err != nil {
		return err
	}
	return checkOK(result)
}

var reExpunge = regexp.MustCompile(`^(\d+) EXPUNGE$`)

// Expunge issues EXPUNGE and returns the sequence numbers the server
// reported as removed.
func (c *Client) Expunge() ([]int, error) {
	_, untagged, result, err := c.runCommand("EXPUNGE")
	if err != nil {
		return nil, err
	}
	if err := checkOK(result); err != nil {
		return nil, err
	}
	var seqs []int
	for _, line := range untagged {
		body := strings.TrimPrefix(line, "* ")
		if m := reExpunge.FindStringSubmatch(body); m != nil {
			n, _ := strconv.Atoi(m[1])
			seqs = append(seqs, n)
		}
	}
	return seqs, nil
}

// UploadMessage issues APPEND "mailbox" (flags) {len} followed by the
// literal body octets, handling the "+ " continuation per spec.md §4.K.
func (c *Client) UploadMessage(mailbox string, flags []string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tag, err := c.nextTag()
	if err != nil {
		return err
	}

	flagPart := ""
	if len(flags) > 0 {
		flagPart = " (" + strings.Join(flags, " ") + ")"
	}
	cmd := fmt.Sprintf("%s APPEND \"%s\"%s {%d}\r\n", tag, encodeMailboxName(mailbox), flagPart, len(body))
	if err := c.send(cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	cont, err := c.readLine()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(cont, "+") {
		return fmt.Errorf("%w: expected literal continuation, got %q", ErrBadResponse, cont)
	}

	if err := c.send(string(body) + "\r\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	_, result, err := c.readUntilTagged(tag)
	if err != nil {
		return err
	}
	return checkOK(result)
}
