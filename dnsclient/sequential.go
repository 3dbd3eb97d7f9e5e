package dnsclient

import (
	"context"
	"fmt"
)

// ResolveSequential walks c.Servers in order, returning the first response
// satisfying the termination predicate (RCODE NoError by default).
// Unlike Resolve it never queries two servers at once, trading latency for
// predictability (e.g. always preferring a primary resolver when it is
// healthy). For each server it tries UDP first (when enabled and the
// query fits in 512 octets) then TCP (when enabled), per spec.md §4.D's
// "using the configured transport". If no attempt anywhere satisfies the
// predicate, spec.md §4.D step 5's fallback preference applies across
// every attempt made.
func (c *Client) ResolveSequential(ctx context.Context, q Query) (Response, error) {
	if len(c.Servers) == 0 {
		return Response{}, ErrNoServers
	}

	query, reqBytes, err := buildQuery(q, c.UseRandomCase)
	if err != nil {
		return Response{}, err
	}
	if len(reqBytes) > udpEligibleSize && !c.useTCP() {
		return Response{}, ErrMessageTooLarge
	}

	udpEligible := c.useUDP() && len(reqBytes) <= udpEligibleSize
	if !udpEligible && !c.useTCP() {
		return Response{}, fmt.Errorf("%w: both UDP and TCP transports are disabled", ErrDNSClient)
	}

	var results []attemptResult
	for _, server := range c.Servers {
		addr := c.serverAddr(server)

		if udpEligible {
			resp, attemptErr, stop := c.sequentialAttempt(ctx, func(attemptCtx context.Context) (Response, error) {
				return attemptUDP(attemptCtx, addr, query, reqBytes)
			})
			results = append(results, attemptResult{resp: resp, err: attemptErr})
			if stop {
				return resp, nil
			}
		}
		if c.useTCP() {
			resp, attemptErr, stop := c.sequentialAttempt(ctx, func(attemptCtx context.Context) (Response, error) {
				return attemptTCP(attemptCtx, addr, query, reqBytes)
			})
			results = append(results, attemptResult{resp: resp, err: attemptErr})
			if stop {
				return resp, nil
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	return selectResponse(results)
}

// sequentialAttempt runs one attempt under its own deadline and reports
// whether it satisfied the termination predicate.
func (c *Client) sequentialAttempt(ctx context.Context, run func(context.Context) (Response, error)) (Response, error, bool) {
	attemptCtx, cancel := attemptContext(ctx, c.timeout())
	defer cancel()
	resp, err := run(attemptCtx)
	if err == nil && defaultPredicate(resp.Packet) {
		return resp, nil, true
	}
	return resp, err, false
}
