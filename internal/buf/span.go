// Package buf contains overflow-safe arithmetic and range helpers used when
// translating arena offsets into slices.
package buf

import "math"

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// AddU64 adds a and b, returning ok = false when the result would wrap.
func AddU64(a, b uint64) (uint64, bool) {
	s := a + b
	return s, s >= a
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
// The returned slice has its capacity clipped to n so appends cannot spill
// into the neighbouring bytes.
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > len(b) {
		return nil, false
	}
	return b[off:end:end], true
}

// Has reports whether b[off:off+n] is within bounds.
func Has(b []byte, off, n int) bool {
	_, ok := Slice(b, off, n)
	return ok
}

// Overlaps reports whether the half-open ranges [aOff, aOff+aLen) and
// [bOff, bOff+bLen) share at least one byte. Empty ranges never overlap.
func Overlaps(aOff, aLen, bOff, bLen int) bool {
	if aLen <= 0 || bLen <= 0 {
		return false
	}
	return aOff < bOff+bLen && bOff < aOff+aLen
}
