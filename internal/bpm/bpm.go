// Package bpm translates tempo adjustments into audio playback rates.
//
// All functions are pure. Results are persisted by the session store, never here.
package bpm

import (
	"math"
	"strconv"
)

// PlaybackRate returns the multiplier that makes a track with the given native
// tempo play at the target tempo. A native tempo that is unset (zero or
// negative) yields 1, meaning analysis has not produced a usable tempo yet.
func PlaybackRate(target, native float64) float64 {
	if native <= 0 || target <= 0 {
		return 1
	}
	return target / native
}

// Normalize rounds a tempo to one decimal place. This is the value that gets
// persisted as the adjusted BPM. It parses back what Format prints, so a
// persisted tempo always matches its display.
func Normalize(raw float64) float64 {
	v, err := strconv.ParseFloat(Format(raw), 64)
	if err != nil {
		return raw
	}
	return v
}

// Format renders a tempo with exactly one decimal place, e.g. "128.0".
// Rounding is decided on the exact binary value, so 0.15 (stored just below
// 0.15) prints "0.1". Exact halfway values round away from zero.
func Format(v float64) string {
	if isTie(v) {
		v += math.Copysign(0.05, v)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// isTie reports whether v lies exactly halfway between two tenths. Only
// values ending in .25 or .75 can, since a tenth is not a binary fraction.
func isTie(v float64) bool {
	q := v * 4
	return q == math.Trunc(q) && math.Mod(q, 2) != 0
}

// Differs reports whether an adjusted tempo differs from the native tempo
// once both are normalized. A true result means a reset should be offered.
func Differs(adjusted, native float64) bool {
	return Format(adjusted) != Format(native)
}
