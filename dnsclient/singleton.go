package dnsclient

import (
	"context"
	"log/slog"
	"sync"
)

var (
	defaultClientOnce sync.Once
	defaultClient     *Client
	defaultClientErr  error
)

// Default returns a process-wide Client built from DefaultServers(),
// constructed lazily on first use — per spec.md §9's design note that the
// default DNS client is a process-wide lazy singleton rather than an
// eagerly-initialized package-level value, so that importing this package
// without ever calling Default costs nothing at startup.
func Default() (*Client, error) {
	defaultClientOnce.Do(func() {
		defaultClient, defaultClientErr = New(nil, slog.Default())
	})
	return defaultClient, defaultClientErr
}

// Resolve resolves q using the process-wide default Client.
func Resolve(ctx context.Context, q Query) (Response, error) {
	c, err := Default()
	if err != nil {
		return Response{}, err
	}
	return c.Resolve(ctx, q)
}
