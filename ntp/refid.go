package ntp

import (
	"encoding/binary"
	"fmt"
)

// Well-known stratum-1 reference identifiers (RFC 5905 §7.3, Figure 12):
// four-character ASCII codes packed into the ReferenceID field's 32 bits
// when Stratum is 1. At stratum >= 2 the same field instead carries the
// IPv4 address (or a hash of an IPv6 address) of the server's own
// synchronization source; RefIDString renders either form.
var refIDNames = map[uint32]string{
	refID("GOES"): "GOES",
	refID("GPS\x00"): "GPS",
	refID("GAL\x00"): "GAL",
	refID("PPS\x00"): "PPS",
	refID("IRIG"): "IRIG",
	refID("WWVB"): "WWVB",
	refID("DCF\x00"): "DCF",
	refID("HBG\x00"): "HBG",
	refID("MSF\x00"): "MSF",
	refID("JJY\x00"): "JJY",
	refID("LORC"): "LORC",
	refID("TDF\x00"): "TDF",
	refID("CHU\x00"): "CHU",
	refID("WWV\x00"): "WWV",
	refID("WWVH"): "WWVH",
	refID("NIST"): "NIST",
	refID("ACTS"): "ACTS",
	refID("USNO"): "USNO",
	refID("PTB\x00"): "PTB",
	refID("LOCL"): "LOCL",
	refID("CESM"): "CESM",
	refID("RBDM"): "RBDM",
	refID("OMEG"): "OMEG",
	refID("DCN\x00"): "DCN",
	refID("TSP\x00"): "TSP",
	refID("DTS\x00"): "DTS",
	refID("ATOM"): "ATOM",
	refID("VLF\x00"): "VLF",
	refID("1PPS"): "1PPS",
	refID("FREE"): "FREE",
	refID("INIT"): "INIT",
	refID("STEP"): "STEP",
}

func refID(code string) uint32 {
	var b [4]byte
	copy(b[:], code)
	return binary.BigEndian.Uint32(b[:])
}

// FourCC packs a stratum-1 four-character reference code (e.g. "GPS",
// "PPS") into a ReferenceID value, right-padding with NUL bytes.
func FourCC(code string) uint32 {
	return refID(code)
}

// RefIDString renders a Packet's ReferenceID for display: at stratum 0 or
// 1, the well-known FourCC name, or the four raw bytes as a string for an
// unknown code; at stratum >= 2, a dotted-quad IPv4 address (RFC 5905's
// IPv6-hash form cannot be told apart and is rendered as a dotted quad too).
func RefIDString(stratum uint8, id uint32) string {
	if stratum <= 1 {
		if name, ok := refIDNames[id]; ok {
			return name
		}
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], id)
		return string(b[:])
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}
