package ntp

import (
	"fmt"
	"time"
)

// epoch0 is the NTP era-0 epoch, 1900-01-01 00:00:00 UTC (RFC 5905 §6).
var epoch0 = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// epoch0Unix is epoch0 expressed as a Unix timestamp (negative, since
// 1900 predates 1970). Used by candidateTime to reconstruct an absolute
// time by adding whole seconds directly via time.Unix instead of
// through a time.Duration multiplication, which overflows int64
// nanoseconds for any era more than a couple of eras from 1900 (the
// spec's testable range runs to year 5000, about 23 eras out).
var epoch0Unix = epoch0.Unix()

// eraWidth is the span of one 32-bit NTP seconds field, 2^32 seconds.
const eraWidth = int64(1) << 32

// Timestamp is an NTP 64-bit fixed-point timestamp (32.32, seconds since
// epoch0 within the current 136-year era). The wire format alone cannot
// tell which era a timestamp belongs to; Seconds/Fraction must be combined
// with a reference time to recover an absolute time.
type Timestamp struct {
	Seconds  uint32
	Fraction uint32
}

// FromTime converts an absolute time to the NTP seconds/fraction pair
// within whichever era contains t. Since eras repeat every 2^32 seconds,
// the 32-bit Seconds field alone is era-ambiguous on the wire; ToTime
// resolves that ambiguity given a reference time. Seconds-since-epoch0
// is computed via t.Unix() rather than t.Sub(epoch0): Sub returns a
// time.Duration, which saturates at ~292 years and would silently
// corrupt any t more than a couple of eras from 1900 — the spec's
// testable round-trip range runs to year 5000, about 23 eras out.
func FromTime(t time.Time) Timestamp {
	secsSinceEpoch0 := t.Unix() - epoch0Unix
	return Timestamp{
		Seconds:  uint32(secsSinceEpoch0 & 0xFFFFFFFF),
		Fraction: uint32((int64(t.Nanosecond()) << 32) / int64(time.Second)),
	}
}

// ErrEraAmbiguous is returned by ToTime when no candidate era places the
// timestamp within a quarter epoch of ref — the reference clock is too far
// off, or too far in the past/future, to disambiguate reliably.
var ErrEraAmbiguous = fmt.Errorf("ntp: timestamp era ambiguous relative to reference time")

// ToTime resolves ts to an absolute time nearest to ref, by checking the
// three candidate eras adjacent to ref's own era (ref's era, one era
// earlier, one era later) and picking whichever reconstructed absolute
// time is closest to ref. If even the nearest candidate is farther than a
// quarter epoch (2^30 seconds, ~34 years) from ref, the result is rejected
// as ambiguous rather than silently returned — a caller whose reference
// clock is that far off has bigger problems than this function can fix.
func ToTime(ts Timestamp, ref time.Time) (time.Time, error) {
	refEra := refEraIndex(ref)

	var best time.Time
	bestDist := int64(-1)
	found := false
	for _, era := range []int64{refEra - 1, refEra, refEra + 1} {
		cand := candidateTime(ts, era)
		dist := cand.Sub(ref)
		if dist < 0 {
			dist = -dist
		}
		distSecs := int64(dist / time.Second)
		if !found || distSecs < bestDist {
			found = true
			bestDist = distSecs
			best = cand
		}
	}

	if bestDist > eraWidth/4 {
		return time.Time{}, ErrEraAmbiguous
	}
	return best, nil
}

// refEraIndex returns which NTP era (0 = epoch0..epoch0+2^32s, 1 the next,
// -1 the one before, etc.) contains ref. Uses ref.Unix() rather than
// ref.Sub(epoch0) for the same overflow reason FromTime does.
func refEraIndex(ref time.Time) int64 {
	secsSinceEpoch0 := ref.Unix() - epoch0Unix
	era := secsSinceEpoch0 / eraWidth
	if secsSinceEpoch0 < 0 && secsSinceEpoch0%eraWidth != 0 {
		era--
	}
	return era
}

// candidateTime reconstructs the absolute time for ts assuming it falls
// in the given era index. All whole-second arithmetic happens on int64
// second counts and is only converted to a time.Time at the end via
// time.Unix, so era values far from 1900 (up to year 5000, per spec.md
// §8) never multiply out to a nanosecond count that overflows int64 —
// the failure mode time.Duration(era*eraWidth)*time.Second has.
func candidateTime(ts Timestamp, era int64) time.Time {
	totalSecs := epoch0Unix + era*eraWidth + int64(ts.Seconds)
	fracNanos := (int64(ts.Fraction) * int64(time.Second)) >> 32
	return time.Unix(totalSecs, fracNanos).UTC()
}
