package imapclient

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DSN is a parsed "user:password@host:port" connection string — the
// narrow connection-string collaborator spec.md §6 names as an external
// boundary. No pack dependency implements this exact form, so it is a
// few lines hand-rolled here.
type DSN struct {
	User     string
	Password string
	Host     string
	Port     int
}

// ParseDSN parses s into its components.
func ParseDSN(s string) (DSN, error) {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return DSN{}, fmt.Errorf("%w: missing '@' in DSN %q", ErrInvalidArgument, s)
	}
	userinfo, hostport := s[:at], s[at+1:]

	user, password, _ := strings.Cut(userinfo, ":")
	unescapedUser, err := url.QueryUnescape(user)
	if err != nil {
		return DSN{}, fmt.Errorf("%w: user component of %q: %v", ErrInvalidArgument, s, err)
	}
	unescapedPassword, err := url.QueryUnescape(password)
	if err != nil {
		return DSN{}, fmt.Errorf("%w: password component of %q: %v", ErrInvalidArgument, s, err)
	}

	host, portStr, ok := strings.Cut(hostport, ":")
	if !ok {
		return DSN{}, fmt.Errorf("%w: missing port in DSN %q", ErrInvalidArgument, s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return DSN{}, fmt.Errorf("%w: invalid port in DSN %q: %v", ErrInvalidArgument, s, err)
	}

	return DSN{User: unescapedUser, Password: unescapedPassword, Host: host, Port: port}, nil
}
