package ntp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketMarshalUnmarshalRoundTrip(t *testing.T) {
	p := Packet{
		Settings:       BuildSettings(LeapNoWarning, 4, ModeClient),
		Stratum:        2,
		Poll:           6,
		Precision:      -20,
		RootDelay:      12345,
		RootDispersion: 6789,
		ReferenceID:    FourCC("GPS"),
		ReferenceSec:   1000, ReferenceFrac: 2000,
		OriginSec: 3000, OriginFrac: 4000,
		ReceiveSec: 5000, ReceiveFrac: 6000,
		TransmitSec: 7000, TransmitFrac: 8000,
	}

	buf := p.Marshal()
	require.Len(t, buf, PacketSize)

	got, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestSettingsPackUnpack(t *testing.T) {
	s := BuildSettings(LeapNotInSync, 4, ModeClient)
	p := Packet{Settings: s}
	assert.EqualValues(t, LeapNotInSync, p.Leap())
	assert.EqualValues(t, 4, p.Version())
	assert.EqualValues(t, ModeClient, p.Mode())
}

func TestUnmarshalRejectsShortBuffer(t *testing.T) {
	_, err := Unmarshal(make([]byte, PacketSize-1))
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestUnmarshalIgnoresTrailingExtensionBytes(t *testing.T) {
	buf := append(Packet{Stratum: 1}.Marshal(), 0xAA, 0xBB, 0xCC)
	p, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.Stratum)
}
