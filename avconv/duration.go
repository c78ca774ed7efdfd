// duration.go provides conversions between libav timestamps and microseconds.

// Package avconv provides conversion utilities between libav values and the
// player's own units.
package avconv

import (
	"github.com/asticode/go-astiav"
)

// MicrosecondTimeBase is the time base of every timestamp the player passes
// between the demuxer and the decoders.
var MicrosecondTimeBase = astiav.NewRational(1, 1_000_000)

// IsNoPTS reports whether t is libav's AV_NOPTS_VALUE.
func IsNoPTS(t int64) bool {
	return t == astiav.NoPtsValue
}

// ToMicroseconds rescales t from timeBase; an unset timestamp stays unset.
func ToMicroseconds(t int64, timeBase astiav.Rational) int64 {
	if IsNoPTS(t) {
		return astiav.NoPtsValue
	}
	return astiav.RescaleQ(t, timeBase, MicrosecondTimeBase)
}

// MicrosecondsToMilliseconds rounds towards negative infinity, so a frame
// may become due up to 1ms before its exact timestamp; the rounding is
// monotonic, so the order of timestamps is preserved.
func MicrosecondsToMilliseconds(us int64) int64 {
	if us >= 0 {
		return us / 1000
	}
	return -((-us + 999) / 1000)
}
