package imapclient

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedServer runs script against the server half of an in-memory
// net.Pipe connection and returns a Client wired to the client half.
func scriptedServer(t *testing.T, script func(t *testing.T, conn net.Conn, br *bufio.Reader)) *Client {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	go func() {
		defer serverConn.Close()
		script(t, serverConn, bufio.NewReader(serverConn))
	}()
	c := NewClient(clientConn)
	c.ReadTimeout = 2 * time.Second
	c.WriteTimeout = 2 * time.Second
	return c
}

func writeLine(t *testing.T, conn net.Conn, format string, args ...any) {
	t.Helper()
	_, err := fmt.Fprintf(conn, format+"\r\n", args...)
	require.NoError(t, err)
}

func TestLoginSelectLogout(t *testing.T) {
	c := scriptedServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		writeLine(t, conn, "* OK IMAP4rev1 Service Ready")

		_, err := br.ReadString('\n') // "00 LOGIN alice secret"
		require.NoError(t, err)
		writeLine(t, conn, "00 OK LOGIN completed")

		_, err = br.ReadString('\n') // `01 SELECT "INBOX"`
		require.NoError(t, err)
		writeLine(t, conn, `* FLAGS (\Answered \Flagged \Draft \Deleted \Seen)`)
		writeLine(t, conn, "* 2 EXISTS")
		writeLine(t, conn, "* 1 RECENT")
		writeLine(t, conn, "* OK [UIDVALIDITY 999]")
		writeLine(t, conn, "* OK [UIDNEXT 3]")
		writeLine(t, conn, "01 OK [READ-WRITE] Completed")

		_, err = br.ReadString('\n') // "02 LOGOUT"
		require.NoError(t, err)
		writeLine(t, conn, "* BYE LOGOUT Requested")
		writeLine(t, conn, "02 OK LOGOUT completed")
	})
	defer c.Close()

	require.NoError(t, c.Login("alice", "secret"))

	info, err := c.Select("INBOX")
	require.NoError(t, err)
	assert.Equal(t, "INBOX", info.Name)
	assert.Equal(t, 2, info.Exist)
	assert.Equal(t, 1, info.Recent)
	assert.Equal(t, uint32(999), info.UIDValidity)
	assert.Equal(t, uint32(3), info.UIDNext)

	other := MailboxInfo{
		Name:        "INBOX",
		Recent:      1,
		Exist:       2,
		Flags:       []string{`\Answered`, `\Flagged`, `\Draft`, `\Deleted`, `\Seen`},
		UIDValidity: 999,
		UIDNext:     3,
	}
	assert.True(t, info.Equal(other))
	assert.Equal(t, info.Hash(), other.Hash())

	require.NoError(t, c.Logout())
}

func TestLoginRejectsNonURLSafeCredentials(t *testing.T) {
	c := scriptedServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		writeLine(t, conn, "* OK IMAP4rev1 Service Ready")
	})
	defer c.Close()

	err := c.Login("alice", "has a space")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestLoginServerRejection(t *testing.T) {
	c := scriptedServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		writeLine(t, conn, "* OK IMAP4rev1 Service Ready")
		_, _ = br.ReadString('\n')
		writeLine(t, conn, "00 NO invalid credentials")
	})
	defer c.Close()

	err := c.Login("alice", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestGetMessage(t *testing.T) {
	body := "Subject: hi\r\n\r\nhello world"
	c := scriptedServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		_, err := br.ReadString('\n') // "00 FETCH 1 BODY[]"
		require.NoError(t, err)
		writeLine(t, conn, "* 1 FETCH (BODY[] {%d}", len(body))
		_, err = conn.Write([]byte(body))
		require.NoError(t, err)
		writeLine(t, conn, ")")
		writeLine(t, conn, "00 OK FETCH completed")
	})
	defer c.Close()

	got, err := c.GetMessage(1)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestSearch(t *testing.T) {
	c := scriptedServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		assert.Contains(t, line, `SEARCH OR FROM "a@example.com" FROM "b@example.com"`)
		writeLine(t, conn, "* SEARCH 2 4 9")
		writeLine(t, conn, "00 OK SEARCH completed")
	})
	defer c.Close()

	nums, err := c.Search(Or(From("a@example.com"), From("b@example.com")))
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 4, 9}, nums)
}

func TestSearchRejectsNonASCII(t *testing.T) {
	_, err := (&Client{}).Search(Subject("héllo"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSearchDateFormatIsRFC3501(t *testing.T) {
	k := Since(time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "SINCE 2-Jan-2026", renderKey(k))
}

func TestListMailboxesDecodesModifiedUTF7(t *testing.T) {
	c := scriptedServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		_, err := br.ReadString('\n')
		require.NoError(t, err)
		writeLine(t, conn, `* LIST (\HasNoChildren) "/" "INBOX"`)
		writeLine(t, conn, `* LIST (\HasNoChildren) "/" "%s"`, encodeMailboxName("Entwürfe"))
		writeLine(t, conn, "00 OK LIST completed")
	})
	defer c.Close()

	entries, err := c.ListMailboxes()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "INBOX", entries[0].Name)
	assert.Equal(t, "Entwürfe", entries[1].Name)
}

func TestStoreExpungeCreate(t *testing.T) {
	c := scriptedServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		_, err := br.ReadString('\n') // STORE
		require.NoError(t, err)
		writeLine(t, conn, `* 4 FETCH (FLAGS (\Seen))`)
		writeLine(t, conn, "00 OK STORE completed")

		_, err = br.ReadString('\n') // EXPUNGE
		require.NoError(t, err)
		writeLine(t, conn, "* 3 EXPUNGE")
		writeLine(t, conn, "* 5 EXPUNGE")
		writeLine(t, conn, "01 OK EXPUNGE completed")

		_, err = br.ReadString('\n') // CREATE
		require.NoError(t, err)
		writeLine(t, conn, "02 OK CREATE completed")
	})
	defer c.Close()

	require.NoError(t, c.Store(4, `+FLAGS (\Seen)`))

	seqs, err := c.Expunge()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, seqs)

	require.NoError(t, c.Create("Archive"))
}

func TestUploadMessage(t *testing.T) {
	body := []byte("From: a\r\n\r\nhi")
	c := scriptedServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		assert.Contains(t, line, fmt.Sprintf("{%d}", len(body)))
		writeLine(t, conn, "+ Ready for literal data")

		got := make([]byte, len(body))
		_, err = io.ReadFull(br, got)
		require.NoError(t, err)
		assert.Equal(t, body, got)

		_, err = br.ReadString('\n') // trailing CRLF after literal
		require.NoError(t, err)
		writeLine(t, conn, "00 OK APPEND completed")
	})
	defer c.Close()

	require.NoError(t, c.UploadMessage("INBOX", []string{`\Seen`}, body))
}

func TestTagSpaceExhausted(t *testing.T) {
	c := scriptedServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		for i := 0; i < 256; i++ {
			_, err := br.ReadString('\n')
			require.NoError(t, err)
			tag := fmt.Sprintf("%02x", i)
			writeLine(t, conn, "%s OK NOOP completed", tag)
		}
	})
	defer c.Close()

	for i := 0; i < 256; i++ {
		_, _, _, err := c.runCommand("NOOP")
		require.NoError(t, err)
	}
	_, _, _, err := c.runCommand("NOOP")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTagSpaceExhausted)
}

func TestModifiedUTF7RoundTrip(t *testing.T) {
	cases := []string{"INBOX", "Entwürfe", "日本語", "&weird&"}
	for _, s := range cases {
		encoded := encodeMailboxName(s)
		decoded, err := decodeMailboxName(encoded)
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	}
}

func TestParseDSN(t *testing.T) {
	dsn, err := ParseDSN("alice:s3cret@imap.example.com:993")
	require.NoError(t, err)
	assert.Equal(t, DSN{User: "alice", Password: "s3cret", Host: "imap.example.com", Port: 993}, dsn)

	_, err = ParseDSN("not-a-dsn")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
