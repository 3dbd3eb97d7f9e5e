// Package ntp implements an SNTP (RFC 2030 / RFC 4330) client and server:
// a one-shot client exchange with round-trip delay/offset computation, and
// a server that answers client-mode requests from an injected clock
// source. It is not a full NTP daemon — no clock discipline, no peer
// tables, no multi-association state machine.
package ntp

import (
	"fmt"
	"time"

	"github.com/jroosing/hydranet/internal/wire"
)

// PacketSize is the fixed wire size of an SNTP packet with no extension
// fields (RFC 2030 §4), grounded on
// _examples/other_examples/eea8c2b1_facebook-time__ntp-protocol-packet.go.go's
// PacketSizeBytes constant.
const PacketSize = 48

// Leap indicator values (RFC 2030 §3, bits 7-6 of the first octet).
const (
	LeapNoWarning    uint8 = 0
	LeapInsertSecond uint8 = 1
	LeapDeleteSecond uint8 = 2
	LeapNotInSync    uint8 = 3
)

// Mode values (RFC 2030 §3, bits 2-0 of the first octet).
const (
	ModeReserved         uint8 = 0
	ModeSymmetricActive  uint8 = 1
	ModeSymmetricPassive uint8 = 2
	ModeClient           uint8 = 3
	ModeServer           uint8 = 4
	ModeBroadcast        uint8 = 5
	ModeControl          uint8 = 6
	ModePrivate          uint8 = 7
)

// Packet is the 48-byte SNTP message body (RFC 2030 §4), field-for-field
// the layout
// _examples/other_examples/eea8c2b1_facebook-time__ntp-protocol-packet.go.go's
// Packet struct documents, but marshaled through internal/wire's cursor
// instead of encoding/binary's struct-reflection Write/Read so the codec
// style matches the rest of this module (internal/dns, internal/dnsname).
type Packet struct {
	Settings       uint8 // LI (2 bits) | VN (3 bits) | Mode (3 bits)
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      uint32
	RootDispersion uint32
	ReferenceID    uint32

	ReferenceSec, ReferenceFrac uint32
	OriginSec, OriginFrac       uint32
	ReceiveSec, ReceiveFrac     uint32
	TransmitSec, TransmitFrac   uint32
}

// BuildSettings packs the leap indicator, version and mode into a single
// octet: LI<<6 | VN<<3 | Mode.
func BuildSettings(leap uint8, version uint8, mode uint8) uint8 {
	return (leap&0x3)<<6 | (version&0x7)<<3 | (mode & 0x7)
}

// Leap, Version and Mode unpack the settings octet's three fields.
func (p Packet) Leap() uint8    { return (p.Settings >> 6) & 0x3 }
func (p Packet) Version() uint8 { return (p.Settings >> 3) & 0x7 }
func (p Packet) Mode() uint8    { return p.Settings & 0x7 }

// fixed1616Scale is the denominator of an RFC 2030 16.16 fixed-point
// field: 16 fractional bits.
const fixed1616Scale = 1 << 16

// durationToFixed1616 converts d to the signed 16.16 fixed-point form
// RootDelay/RootDispersion are stored in, bit-reinterpreted as uint32
// to match Packet's field type.
func durationToFixed1616(d time.Duration) uint32 {
	fixed := int32(d.Seconds() * fixed1616Scale)
	return uint32(fixed)
}

// fixed1616ToDuration is durationToFixed1616's inverse.
func fixed1616ToDuration(v uint32) time.Duration {
	seconds := float64(int32(v)) / fixed1616Scale
	return time.Duration(seconds * float64(time.Second))
}

// RootDelayDuration decodes RootDelay from its wire 16.16 fixed-point
// form into a time.Duration.
func (p Packet) RootDelayDuration() time.Duration { return fixed1616ToDuration(p.RootDelay) }

// RootDispersionDuration decodes RootDispersion from its wire 16.16
// fixed-point form into a time.Duration.
func (p Packet) RootDispersionDuration() time.Duration { return fixed1616ToDuration(p.RootDispersion) }

// Marshal encodes p to its 48-byte wire form.
func (p Packet) Marshal() []byte {
	w := wire.NewWriter(PacketSize)
	w.PutUint8(p.Settings)
	w.PutUint8(p.Stratum)
	w.PutUint8(uint8(p.Poll))
	w.PutUint8(uint8(p.Precision))
	w.PutUint32(p.RootDelay)
	w.PutUint32(p.RootDispersion)
	w.PutUint32(p.ReferenceID)
	w.PutUint32(p.ReferenceSec)
	w.PutUint32(p.ReferenceFrac)
	w.PutUint32(p.OriginSec)
	w.PutUint32(p.OriginFrac)
	w.PutUint32(p.ReceiveSec)
	w.PutUint32(p.ReceiveFrac)
	w.PutUint32(p.TransmitSec)
	w.PutUint32(p.TransmitFrac)
	return w.Bytes()
}

// ErrShortPacket is returned by Unmarshal when buf is smaller than
// PacketSize.
var ErrShortPacket = fmt.Errorf("ntp: packet shorter than %d bytes", PacketSize)

// Unmarshal decodes a Packet from its 48-byte wire form. Extra trailing
// bytes (NTPv4 extension fields, MAC) are ignored.
func Unmarshal(buf []byte) (Packet, error) {
	if len(buf) < PacketSize {
		return Packet{}, ErrShortPacket
	}
	r := wire.NewReader(buf)
	var p Packet
	settings, _ := r.Uint8()
	stratum, _ := r.Uint8()
	poll, _ := r.Int8()
	precision, _ := r.Int8()
	rootDelay, _ := r.Uint32()
	rootDispersion, _ := r.Uint32()
	refID, _ := r.Uint32()
	refSec, _ := r.Uint32()
	refFrac, _ := r.Uint32()
	origSec, _ := r.Uint32()
	origFrac, _ := r.Uint32()
	rxSec, _ := r.Uint32()
	rxFrac, _ := r.Uint32()
	txSec, _ := r.Uint32()
	txFrac, err := r.Uint32()
	if err != nil {
		return Packet{}, ErrShortPacket
	}
	p = Packet{
		Settings: settings, Stratum: stratum, Poll: poll, Precision: precision,
		RootDelay: rootDelay, RootDispersion: rootDispersion, ReferenceID: refID,
		ReferenceSec: refSec, ReferenceFrac: refFrac,
		OriginSec: origSec, OriginFrac: origFrac,
		ReceiveSec: rxSec, ReceiveFrac: rxFrac,
		TransmitSec: txSec, TransmitFrac: txFrac,
	}
	return p, nil
}
