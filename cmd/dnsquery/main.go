// Command dnsquery sends a single DNS query through dnsclient and prints
// the answer section, demonstrating the library's race-and-select
// resolution path against one or more upstream servers.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jroosing/hydranet/dnsclient"
	"github.com/jroosing/hydranet/internal/config"
	"github.com/jroosing/hydranet/internal/dns"
	"github.com/jroosing/hydranet/internal/logging"
)

func main() {
	var (
		server     = flag.String("server", "", "Comma-separated DNS server HOST[:PORT] list; empty discovers from OS/resolv.conf")
		name       = flag.String("name", "example.com", "Query name")
		qtype      = flag.String("qtype", "A", "Query type: A, AAAA, MX, TXT, NS, CNAME, PTR, SOA, or a numeric value")
		timeout    = flag.Duration("timeout", 2*time.Second, "Per-attempt timeout")
		sequential = flag.Bool("sequential", false, "Query servers one at a time instead of racing them")
		configPath = flag.String("config", "", "Optional YAML config file (see internal/config)")
		quiet      = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
	)
	flag.Parse()

	cfg, err := config.Load(config.ResolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsquery: loading config: %v\n", err)
		os.Exit(2)
	}
	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})

	servers := cfg.DNS.Servers
	if *server != "" {
		servers = splitServers(*server)
	}

	client, err := dnsclient.New(servers, logger)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsquery: %v\n", err)
		}
		os.Exit(1)
	}
	if *timeout > 0 {
		client.Timeout = *timeout
	}

	rtype, err := parseType(*qtype)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsquery: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout*time.Duration(len(client.Servers)+1))
	defer cancel()

	query := dnsclient.Query{Name: *name, Type: rtype}
	var resp dnsclient.Response
	if *sequential || cfg.DNS.Sequential {
		resp, err = client.ResolveSequential(ctx, query)
	} else {
		resp, err = client.Resolve(ctx, query)
	}
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsquery: %v\n", err)
		}
		os.Exit(1)
	}
	if *quiet {
		return
	}

	fmt.Printf("server=%s id=%d rcode=%d answers=%d authorities=%d additionals=%d\n",
		resp.Server,
		resp.Packet.Header.ID,
		dns.RCodeFromFlags(resp.Packet.Header.Flags),
		len(resp.Packet.Answers),
		len(resp.Packet.Authorities),
		len(resp.Packet.Additionals),
	)

	rows := make([]string, 0, len(resp.Packet.Answers))
	for _, rr := range resp.Packet.Answers {
		rows = append(rows, formatRR(rr))
	}
	sort.Strings(rows)
	for _, s := range rows {
		fmt.Println(s)
	}
}

func splitServers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseType(s string) (uint16, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return uint16(dns.TypeA), nil
	case "AAAA":
		return uint16(dns.TypeAAAA), nil
	case "MX":
		return uint16(dns.TypeMX), nil
	case "TXT":
		return uint16(dns.TypeTXT), nil
	case "NS":
		return uint16(dns.TypeNS), nil
	case "CNAME":
		return uint16(dns.TypeCNAME), nil
	case "PTR":
		return uint16(dns.TypePTR), nil
	case "SOA":
		return uint16(dns.TypeSOA), nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unrecognized query type %q", s)
	}
	return uint16(n), nil
}

func formatRR(rr dns.Record) string {
	name := rr.Name
	if name == "" {
		name = "."
	}
	switch dns.RecordType(rr.Type) {
	case dns.TypeA:
		if b, ok := rr.Data.([]byte); ok && len(b) == 4 {
			return fmt.Sprintf("%s %d IN A %d.%d.%d.%d", name, rr.TTL, b[0], b[1], b[2], b[3])
		}
	case dns.TypeAAAA:
		if b, ok := rr.Data.([]byte); ok && len(b) == 16 {
			ip := net.IP(b)
			return fmt.Sprintf("%s %d IN AAAA %s", name, rr.TTL, ip.String())
		}
	case dns.TypeCNAME:
		if s, ok := rr.Data.(string); ok {
			return fmt.Sprintf("%s %d IN CNAME %s", name, rr.TTL, s)
		}
	}
	return fmt.Sprintf("%s %d IN TYPE%d (unparsed)", name, rr.TTL, rr.Type)
}
