// Package format holds the on-arena layout of the heap: word size, alignment,
// the packed (size, allocated) block tag, and the fixed prefix written by the
// allocator at initialization. Everything here is pure and allocation-free so
// the allocator, the verifier and tests can share one definition of the layout.
package format

const (
	// WordSize is the size of one header or footer word in bytes.
	WordSize = 8

	// Alignment is the block alignment (a double machine word). Every block
	// size and every payload offset is a multiple of it.
	Alignment = 2 * WordSize

	// AlignmentMask is the bitmask used for aligning to Alignment (Alignment - 1).
	AlignmentMask = Alignment - 1

	// Overhead is the per-block bookkeeping cost: one header and one footer word.
	Overhead = 2 * WordSize

	// MinBlockSize is the smallest block that can hold a free-list node:
	// header, next link, prev link and footer.
	MinBlockSize = 4 * WordSize

	// AllocatedBit is the low bit of a packed tag. Sizes are multiples of
	// Alignment, so the low four bits are always free for flags.
	AllocatedBit = 0x1

	// sizeMask clears the flag bits of a packed tag.
	sizeMask = ^uint64(AlignmentMask)
)

// Heap prefix layout (offsets from the start of the arena).
//
//	Offset  Size  Description
//	0x00    8     Alignment padding (zero)
//	0x08    8     Prologue header: Pack(16, allocated)
//	0x10    8     Prologue footer: Pack(16, allocated)
//	0x18    8     Epilogue header: Pack(0, allocated)
//
// The prologue is a permanently allocated block whose payload offset is
// PrologueOffset. The first real block starts where the epilogue sits right
// after initialization, so its payload offset is FirstBlockOffset.
const (
	PrologueHeaderOffset = 0x08
	PrologueFooterOffset = 0x10
	PrologueOffset       = 0x10
	PrologueSize         = Alignment

	// PrefixSize is the number of bytes written by heap initialization.
	PrefixSize = 4 * WordSize

	// FirstBlockOffset is the payload offset of the first block after the prologue.
	FirstBlockOffset = PrefixSize
)
