package imapclient

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"
)

var reLiteralSize = regexp.MustCompile(`\{(\d+)\}\s*$`)

// GetMessage fetches the full body of message seq via FETCH <n> BODY[].
func (c *Client) GetMessage(seq int) ([]byte, error) {
	return c.fetchLiteral(seq, "BODY[]")
}

// GetMessageHeader fetches only the header octets of message seq via
// FETCH <n> BODY[HEADER].
func (c *Client) GetMessageHeader(seq int) ([]byte, error) {
	return c.fetchLiteral(seq, "BODY[HEADER]")
}

// fetchLiteral implements the literal-framed FETCH dance described in
// spec.md §4.K: parse the announced size from "{<size>}" at the end of
// the first response line, read exactly that many octets, then drain the
// rest of the FETCH response to its tagged completion.
func (c *Client) fetchLiteral(seq int, item string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tag, err := c.nextTag()
	if err != nil {
		return nil, err
	}
	if err := c.send(fmt.Sprintf("%s FETCH %d %s\r\n", tag, seq, item)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	first, err := c.readLine()
	if err != nil {
		return nil, err
	}
	m := reLiteralSize.FindStringSubmatch(first)
	if m == nil {
		// No literal announced — drain to completion and surface whatever
		// the server actually said (e.g. a NIL body for an empty FETCH).
		_, result, err := c.readUntilTagged(tag)
		if err != nil {
			return nil, err
		}
		if err := checkOK(result); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: FETCH response carried no literal: %q", ErrBadResponse, first)
	}
	size, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid literal size in %q", ErrBadResponse, first)
	}

	data, err := c.readLiteralWithRetry(size)
	if err != nil {
		return nil, err
	}

	// Consume the remainder of the FETCH item's closing line (")" and
	// CRLF) before reading the tagged completion.
	if _, err := c.readLine(); err != nil {
		return nil, err
	}
	_, result, err := c.readUntilTagged(tag)
	if err != nil {
		return nil, err
	}
	if err := checkOK(result); err != nil {
		return nil, err
	}
	return data, nil
}

// readLiteralWithRetry reads exactly n octets off the connection, retrying
// up to three times when a read returns nothing or fewer bytes than
// requested before failing, per spec.md §4.K.
func (c *Client) readLiteralWithRetry(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for attempt := 0; attempt < 3 && got < n; attempt++ {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout()))
		read, err := io.ReadFull(c.br, buf[got:])
		got += read
		if err == nil {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			continue
		}
		return nil, classifyReadErr(err)
	}
	if got < n {
		return nil, fmt.Errorf("%w: literal truncated after retries: got %d of %d bytes", ErrBadResponse, got, n)
	}
	return buf, nil
}
