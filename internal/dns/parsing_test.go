package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseBoundedRejectsOversizeMessage(t *testing.T) {
	msg := make([]byte, MaxIncomingDNSMessageSize+1)
	_, err := ParseResponseBounded(msg)
	assert.ErrorIs(t, err, ErrDNSError)
}

func TestValidateEchoAcceptsMatchingResponse(t *testing.T) {
	query := Packet{
		Header:    Header{ID: 42},
		Questions: []Question{{Name: "example.com", Type: uint16(TypeA), Class: uint16(ClassIN)}},
	}
	response := Packet{
		Header:    Header{ID: 42, Flags: QRFlag},
		Questions: []Question{{Name: "EXAMPLE.com", Type: uint16(TypeA), Class: uint16(ClassIN)}},
	}
	require.NoError(t, ValidateEcho(query, response))
}

func TestValidateEchoRejectsTransactionIDMismatch(t *testing.T) {
	query := Packet{Header: Header{ID: 1}, Questions: []Question{{Name: "a.com"}}}
	response := Packet{Header: Header{ID: 2, Flags: QRFlag}, Questions: []Question{{Name: "a.com"}}}
	assert.ErrorIs(t, ValidateEcho(query, response), ErrDNSError)
}

func TestValidateEchoRejectsQuestionMismatch(t *testing.T) {
	query := Packet{
		Header:    Header{ID: 1},
		Questions: []Question{{Name: "a.com", Type: uint16(TypeA)}},
	}
	response := Packet{
		Header:    Header{ID: 1, Flags: QRFlag},
		Questions: []Question{{Name: "b.com", Type: uint16(TypeA)}},
	}
	assert.ErrorIs(t, ValidateEcho(query, response), ErrDNSError)
}

func TestValidateEchoRejectsMissingQRFlag(t *testing.T) {
	query := Packet{Header: Header{ID: 1}, Questions: []Question{{Name: "a.com"}}}
	response := Packet{Header: Header{ID: 1}, Questions: []Question{{Name: "a.com"}}}
	assert.ErrorIs(t, ValidateEcho(query, response), ErrDNSError)
}
