package format

// Alignment utilities for the heap layout.
// Block sizes are always rounded up to a double-word (16-byte) boundary.

// AlignUp returns n aligned up to the next 16-byte boundary.
//
// Example:
//
//	AlignUp(1)  = 16
//	AlignUp(16) = 16
//	AlignUp(17) = 32
func AlignUp(n uint64) uint64 {
	return (n + AlignmentMask) & sizeMask
}

// AlignUpInt returns n aligned up to the next 16-byte boundary.
// int version for callers working with slice offsets.
func AlignUpInt(n int) int {
	return (n + AlignmentMask) & ^AlignmentMask
}

// IsAligned reports whether n is a multiple of Alignment.
func IsAligned(n uint64) bool {
	return n&AlignmentMask == 0
}
