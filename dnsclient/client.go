package dnsclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jroosing/hydranet/internal/dns"
)

// defaultTimeout bounds a single server attempt when Client.Timeout is
// zero. A caller's context deadline that falls earlier still applies.
const defaultTimeout = 5 * time.Second

// defaultPort is used for any configured server address that omits its own
// port, per spec.md §4.D Configuration's "port (default 53)".
const defaultPort = 53

// udpEligibleSize is the largest query wire size spec.md §4.D step 1 / §8
// allows over UDP; anything larger requires TCP (or fails outright when TCP
// is disabled).
const udpEligibleSize = 512

// Query describes a single DNS question to resolve.
type Query struct {
	Name  string // domain name, e.g. "example.com"
	Type  uint16 // dns.TypeA, dns.TypeAAAA, dns.TypeMX, ...
	Class uint16 // usually dns.ClassIN; zero defaults to ClassIN
}

// Response is a validated, echo-checked DNS response together with the
// server that produced it.
type Response struct {
	Packet dns.Packet
	Server string
}

// Client resolves DNS queries against a fixed or discovered list of
// upstream servers. The zero value is usable: both transports are enabled,
// the default port is 53, and random-case / search-suffix expansion are
// off, matching spec.md §4.D's documented Configuration defaults.
type Client struct {
	Servers []string      // "host:port" (or bare host) upstream addresses
	Timeout time.Duration // per-attempt deadline; defaultTimeout if zero
	Logger  *slog.Logger

	// Port supplies the port number for any entry of Servers that does
	// not already carry one. Zero means defaultPort (53).
	Port int

	// DisableUDP and DisableTCP gate the two transports spec.md §4.D
	// calls "use_udp"/"use_tcp". Both default to enabled (zero value),
	// so a bare Client{Servers: ...} races both transports per server.
	DisableUDP bool
	DisableTCP bool

	// UseRandomCase enables 0x20-encoding (draft-vixie-dns0x20): the
	// query name's letter casing is randomized per attempt as a measure
	// of resistance against off-path response spoofing. Response
	// validation in internal/dns.ValidateEcho already compares names
	// case-insensitively, so this never breaks echo checking.
	UseRandomCase bool

	// SearchSuffixes expands a single-label query name into one
	// candidate per suffix (plus the bare root form) per spec.md §4.D's
	// "Search suffix expansion", racing all candidates and taking the
	// first NoError answer.
	SearchSuffixes []string
}

func (c *Client) useUDP() bool { return !c.DisableUDP }
func (c *Client) useTCP() bool { return !c.DisableTCP }

func (c *Client) port() int {
	if c.Port > 0 {
		return c.Port
	}
	return defaultPort
}

// serverAddr appends c.port() to server if it does not already specify one.
func (c *Client) serverAddr(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	if strings.Contains(server, ":") {
		return fmt.Sprintf("[%s]:%d", server, c.port())
	}
	return fmt.Sprintf("%s:%d", server, c.port())
}

// New creates a Client using servers, or DefaultServers() if servers is
// empty.
func New(servers []string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(servers) == 0 {
		discovered, err := DefaultServers(logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoServers, err)
		}
		servers = discovered
	}
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	return &Client{Servers: servers, Timeout: defaultTimeout, Logger: logger}, nil
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// buildQuery constructs the wire query packet and bytes for q, with a
// cryptographically random transaction ID (grounded on the teacher's
// PatchTransactionID optimization in spirit: here the ID is drawn fresh
// per query rather than patched into a cached template, since this client
// never caches) and, when randomCase is set, 0x20-encoded name casing.
func buildQuery(q Query, randomCase bool) (dns.Packet, []byte, error) {
	class := q.Class
	if class == 0 {
		class = uint16(dns.ClassIN)
	}
	name := q.Name
	if randomCase {
		randomized, err := randomizeCase(name)
		if err != nil {
			return dns.Packet{}, nil, fmt.Errorf("%w: %v", ErrDNSClient, err)
		}
		name = randomized
	}
	id, err := randUint16()
	if err != nil {
		return dns.Packet{}, nil, fmt.Errorf("%w: %v", ErrDNSClient, err)
	}
	p := dns.Packet{
		Header: dns.Header{
			ID:      id,
			Flags:   dns.RDFlag,
			QDCount: 1,
		},
		Questions: []dns.Question{{Name: name, Type: q.Type, Class: class}},
	}
	b, err := p.Marshal()
	if err != nil {
		return dns.Packet{}, nil, fmt.Errorf("%w: %v", ErrDNSClient, err)
	}
	if len(b) > dns.MaxIncomingDNSMessageSize {
		return dns.Packet{}, nil, ErrMessageTooLarge
	}
	return p, b, nil
}

// randomizeCase applies draft-vixie-dns0x20 case randomization to name's
// ASCII letters: each letter's case is flipped under an independent
// CSPRNG-drawn coin. A response's question section must still echo this
// exact mixed-case form, which internal/dns.ValidateEcho verifies
// case-insensitively — any off-path spoofer guessing the wrong casing
// for even one letter fails that check.
func randomizeCase(name string) (string, error) {
	b := []byte(name)
	mask := make([]byte, len(b))
	if _, err := rand.Read(mask); err != nil {
		return "", err
	}
	for i, ch := range b {
		if mask[i]&1 == 0 {
			continue
		}
		switch {
		case ch >= 'a' && ch <= 'z':
			b[i] = ch - ('a' - 'A')
		case ch >= 'A' && ch <= 'Z':
			b[i] = ch + ('a' - 'A')
		}
	}
	return string(b), nil
}

// isSingleLabel reports whether name (ignoring a trailing root dot) has no
// internal label separator, the trigger condition for spec.md §4.D's
// search-suffix expansion.
func isSingleLabel(name string) bool {
	trimmed := strings.TrimSuffix(name, ".")
	return trimmed != "" && !strings.Contains(trimmed, ".")
}

// searchCandidates returns the root form of name plus one candidate per
// configured search suffix, per spec.md §4.D: "generate one query per
// (root ∪ interface DNS-suffix)".
func searchCandidates(name string, suffixes []string) []string {
	root := strings.TrimSuffix(name, ".") + "."
	candidates := make([]string, 0, 1+len(suffixes))
	candidates = append(candidates, root)
	for _, suffix := range suffixes {
		suffix = strings.Trim(suffix, ".")
		if suffix == "" {
			continue
		}
		candidates = append(candidates, strings.TrimSuffix(root, ".")+"."+suffix+".")
	}
	return candidates
}

// defaultPredicate is the race/sequential termination predicate spec.md
// §4.D step 4 calls for by default: the first response with RCODE
// NoError wins outright.
func defaultPredicate(p dns.Packet) bool {
	return dns.RCodeFromFlags(p.Header.Flags) == dns.RCodeNoError
}

// selectResponse implements spec.md §4.D step 5's fallback preference
// among a set of completed attempts, once none of them satisfied the
// termination predicate directly: prefer a NoError response, else the
// first response with at least one answer, else the first response at
// all, else an aggregate failure.
func selectResponse(results []attemptResult) (Response, error) {
	for _, r := range results {
		if r.err == nil && defaultPredicate(r.resp.Packet) {
			return r.resp, nil
		}
	}
	for _, r := range results {
		if r.err == nil && len(r.resp.Packet.Answers) > 0 {
			return r.resp, nil
		}
	}
	for _, r := range results {
		if r.err == nil {
			return r.resp, nil
		}
	}
	return Response{}, aggregateFailure(results)
}

// randUint16 draws a CSPRNG-backed 16-bit value, the entry point named in
// SPEC_FULL.md §6 ("CSPRNG (16-bit/32-bit draws)").
func randUint16() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// attemptResult is one attempt's outcome, collected by both Resolve and
// ResolveSequential.
type attemptResult struct {
	resp Response
	err  error
}

// attemptContext bounds ctx by the per-attempt timeout; an earlier
// deadline already on ctx still wins.
func attemptContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// task is one (server, transport) pair to attempt. run performs it.
type task struct {
	server string
	run    func(ctx context.Context) (Response, error)
}

// buildTasks expands c.Servers into up to two concurrent attempts each
// (UDP and TCP), per spec.md §4.D step 2, gated by DisableUDP/DisableTCP
// and by reqBytes' UDP eligibility (§8's 512-octet boundary).
func (c *Client) buildTasks(query dns.Packet, reqBytes []byte) []task {
	udpEligible := c.useUDP() && len(reqBytes) <= udpEligibleSize
	tasks := make([]task, 0, len(c.Servers)*2)
	for _, server := range c.Servers {
		addr := c.serverAddr(server)
		if udpEligible {
			tasks = append(tasks, task{server: addr, run: func(ctx context.Context) (Response, error) {
				return attemptUDP(ctx, addr, query, reqBytes)
			}})
		}
		if c.useTCP() {
			tasks = append(tasks, task{server: addr, run: func(ctx context.Context) (Response, error) {
				return attemptTCP(ctx, addr, query, reqBytes)
			}})
		}
	}
	return tasks
}
