package format

// Block tag layout (one 64-bit word, stored in both header and footer):
//
//	bit 63 .......... bit 4   bits 3..1   bit 0
//	| size (multiple of 16) | reserved  | allocated |
//
// The size includes the header and footer words.

// Pack combines a block size and allocation flag into a tag word.
// size must be a multiple of Alignment.
func Pack(size uint64, allocated bool) uint64 {
	if allocated {
		return size | AllocatedBit
	}
	return size
}

// UnpackSize returns the block size stored in a tag word.
func UnpackSize(w uint64) uint64 {
	return w & sizeMask
}

// UnpackAllocated reports whether the tag word marks an allocated block.
func UnpackAllocated(w uint64) bool {
	return w&AllocatedBit != 0
}

// Unpack splits a tag word into its size and allocation flag.
func Unpack(w uint64) (uint64, bool) {
	return UnpackSize(w), UnpackAllocated(w)
}

// HeaderOffset returns the offset of the header word for the block whose
// payload starts at p.
func HeaderOffset(p int) int {
	return p - WordSize
}

// FooterOffset returns the offset of the footer word for a block of the given
// size whose payload starts at p.
func FooterOffset(p int, size uint64) int {
	return p + int(size) - Overhead
}

// NextOffset returns the payload offset of the block that follows p.
func NextOffset(p int, size uint64) int {
	return p + int(size)
}

// PrevFooterOffset returns the offset of the footer word of the block that
// precedes p.
func PrevFooterOffset(p int) int {
	return p - Overhead
}

// PayloadSize returns the usable payload bytes of a block of the given size.
func PayloadSize(size uint64) uint64 {
	if size < Overhead {
		return 0
	}
	return size - Overhead
}
