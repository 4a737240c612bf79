package alloc

import (
	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

// setTags writes matching header and footer words for the block at p.
func setTags(mem []byte, p Ptr, size uint64, allocated bool) {
	w := format.Pack(size, allocated)
	format.PutWord(mem, format.HeaderOffset(int(p)), w)
	format.PutWord(mem, format.FooterOffset(int(p), size), w)
}

// writePrefix lays out the alignment pad, the prologue and the first
// epilogue at the start of a fresh arena.
func writePrefix(mem []byte) {
	format.PutWord(mem, 0, 0)
	format.PutWord(mem, format.PrologueHeaderOffset, format.Pack(format.PrologueSize, true))
	format.PutWord(mem, format.PrologueFooterOffset, format.Pack(format.PrologueSize, true))
	writeEpilogue(mem, format.PrefixSize)
}

// writeEpilogue writes the zero-size allocated tag in the last word of an
// extent ending at brk.
func writeEpilogue(mem []byte, brk int) {
	format.PutWord(mem, brk-format.WordSize, format.Pack(0, true))
}

// lookup validates that p addresses a block inside an extent of the given
// length and returns its size and allocation state.
func lookup(mem []byte, extent int, p Ptr) (uint64, bool, error) {
	if p < format.FirstBlockOffset || p >= Ptr(extent) || !format.IsAligned(uint64(p)) {
		return 0, false, ErrBadPointer
	}
	off := int(p)
	hdr := format.ReadWord(mem, format.HeaderOffset(off))
	size, allocated := format.Unpack(hdr)
	if size < format.MinBlockSize {
		return 0, false, ErrBadPointer
	}
	end, ok := buf.AddU64(uint64(p), size)
	if !ok || end > uint64(extent) {
		return 0, false, ErrBadPointer
	}
	if format.ReadWord(mem, format.FooterOffset(off, size)) != hdr {
		return 0, false, ErrBadPointer
	}
	return size, allocated, nil
}

// payloadSlice returns the first n bytes of p's payload with capacity
// clipped to the usable payload of a block of the given size.
func payloadSlice(mem []byte, p Ptr, size uint64, n int) []byte {
	usable, _ := buf.Slice(mem, int(p), int(format.PayloadSize(size)))
	return usable[:n]
}

// requestSize returns the tagged size (payload plus overhead) for a request.
// ok is false when the request cannot fit in an arena of the given limit.
func requestSize(size, limit int) (uint64, bool) {
	need, ok := buf.AddOverflowSafe(size, format.Overhead)
	if !ok || need > limit {
		return 0, false
	}
	return uint64(need), true
}
