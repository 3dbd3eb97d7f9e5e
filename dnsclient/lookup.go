package dnsclient

import (
	"context"
	"fmt"
	"iter"
	"net"

	"github.com/jroosing/hydranet/internal/dns"
)

// LookupHost launches concurrent A and AAAA queries for name and yields
// each resolved address as soon as its query completes, as a lazy, finite,
// not-restartable sequence (Go 1.23 range-over-func), per spec.md §4.D's
// "Host address resolution". When ranged to the end, the iterator returns
// once both queries have reported. An early `break` from the caller's
// range loop returns at once without waiting for the other query; the
// goroutines still run to completion and do not leak, since their result
// channel is buffered for both.
func (c *Client) LookupHost(ctx context.Context, name string) iter.Seq2[net.IP, error] {
	return func(yield func(net.IP, error) bool) {
		type outcome struct {
			ips []net.IP
			err error
		}
		ch := make(chan outcome, 2)

		for _, qtype := range [2]uint16{uint16(dns.TypeA), uint16(dns.TypeAAAA)} {
			go func(qtype uint16) {
				resp, err := c.Resolve(ctx, Query{Name: name, Type: qtype})
				if err != nil {
					ch <- outcome{err: fmt.Errorf("lookup %s (type %d): %w", name, qtype, err)}
					return
				}
				ips := make([]net.IP, 0, len(resp.Packet.Answers))
				for _, rr := range resp.Packet.Answers {
					if s, ok := rr.IPv4(); ok {
						ips = append(ips, net.ParseIP(s))
						continue
					}
					if s, ok := rr.IPv6(); ok {
						ips = append(ips, net.ParseIP(s))
					}
				}
				ch <- outcome{ips: ips}
			}(qtype)
		}

		for range 2 {
			o := <-ch
			if o.err != nil {
				if !yield(nil, o.err) {
					return
				}
				continue
			}
			for _, ip := range o.ips {
				if !yield(ip, nil) {
					return
				}
			}
		}
	}
}
