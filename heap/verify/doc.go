// Package verify provides structural validation of heap images.
//
// # Overview
//
// A heap image is the byte extent of an arena as laid out by the allocator:
//
//	[pad 8][prologue header 8][prologue footer 8][block]...[block][epilogue 8]
//
// Every block carries a header and a footer word holding its size and an
// allocated bit. Sizes are multiples of 16 and at least 32. The epilogue is a
// zero-size allocated header and must be the last word of the image.
//
// The checks here only look at the bytes. They know nothing about free lists
// or size classes; the allocator layers those checks on top (see
// heap/alloc.Heap.Check).
//
// Validation categories:
//   - Prologue: the prefix block is allocated, 16 bytes, header == footer
//   - Structure: blocks tile the image, tags agree, the epilogue is last
//   - Coalesced: no two adjacent blocks are free
//
// # Quick Start
//
//	if err := verify.AllInvariants(h.Bytes()); err != nil {
//	    fmt.Printf("heap corrupt: %v\n", err)
//	}
//
// Walk exposes the blocks to callers that need their own per-block checks:
//
//	err := verify.Walk(data, func(b verify.Block) error {
//	    if !b.Allocated {
//	        free++
//	    }
//	    return nil
//	})
//
// # ValidationError
//
// All validation functions return *ValidationError on failure. Offset is the
// arena offset of the offending tag, or -1 when the error concerns the image
// as a whole. Details carries the raw tag words where they help diagnosis.
package verify
