package dnsclient

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gnet "github.com/shirou/gopsutil/v3/net"
)

// fallbackServers is the curated public resolver list used when neither
// /etc/resolv.conf nor the local interface configuration yields a server.
var fallbackServers = []string{"1.1.1.1:53", "8.8.8.8:53", "9.9.9.9:53"}

// DefaultServers discovers upstream DNS servers for the current host: it
// reads /etc/resolv.conf's "nameserver" lines, and — if that yields
// nothing — enumerates the local network interfaces via gopsutil, logging
// a warning if that enumeration fails, and then returns fallbackServers.
// The interface list does not contribute any server addresses and does
// not change the outcome: every host without resolv.conf nameservers gets
// the fallback list, logged on each call.
func DefaultServers(logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if servers, err := parseResolvConf("/etc/resolv.conf"); err == nil && len(servers) > 0 {
		return servers, nil
	}

	if _, err := gnet.Interfaces(); err != nil {
		logger.Warn("dnsclient: interface enumeration failed, using fallback servers", "error", err)
	}

	logger.Info("dnsclient: no configured nameservers found, using curated fallback list", "servers", fallbackServers)
	return append([]string(nil), fallbackServers...), nil
}

func parseResolvConf(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDNSClient, path, err)
	}
	defer f.Close()

	var servers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "nameserver") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		servers = append(servers, withDefaultPort(fields[1]))
	}
	return servers, scanner.Err()
}

func withDefaultPort(host string) string {
	if strings.Contains(host, "]:") || (!strings.Contains(host, "[") && strings.Contains(host, ":") && strings.Count(host, ":") == 1) {
		return host // already host:port
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]:53" // bare IPv6 literal
	}
	return host + ":53"
}
