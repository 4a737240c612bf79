package verify

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/format"
)

// ValidationError describes a structural defect found in a heap image.
type ValidationError struct {
	Type    string
	Message string
	Offset  int
	Details map[string]interface{}
}

func (e *ValidationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset 0x%X: %s", e.Type, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Block is one block seen during a walk, addressed by its payload offset.
type Block struct {
	Offset    int
	Size      uint64
	Allocated bool
}

// End returns the payload offset of the block that follows b.
func (b Block) End() int {
	return b.Offset + int(b.Size)
}

// AllInvariants validates all structural heap invariants in one call.
// Returns the first error encountered, or nil if all checks pass.
func AllInvariants(data []byte) error {
	if err := Structure(data); err != nil {
		return err
	}
	return Coalesced(data)
}

// Prologue validates the fixed prefix: an allocated 16-byte block whose
// header and footer agree.
func Prologue(data []byte) error {
	if len(data) < format.PrefixSize {
		return &ValidationError{
			Type:    "Prologue",
			Message: fmt.Sprintf("heap too small: %d bytes (need %d)", len(data), format.PrefixSize),
			Offset:  -1,
		}
	}

	want := format.Pack(format.PrologueSize, true)
	hdr := format.ReadWord(data, format.PrologueHeaderOffset)
	ftr := format.ReadWord(data, format.PrologueFooterOffset)
	if hdr != want || ftr != want {
		return &ValidationError{
			Type:    "Prologue",
			Message: fmt.Sprintf("prologue tags corrupt: header=0x%X footer=0x%X, expected 0x%X", hdr, ftr, want),
			Offset:  format.PrologueHeaderOffset,
			Details: map[string]interface{}{
				"header": hdr,
				"footer": ftr,
			},
		}
	}
	return nil
}

// Structure validates that blocks tile the heap from the first block to an
// epilogue in the last word, with matching, aligned header and footer tags.
func Structure(data []byte) error {
	return Walk(data, nil)
}

// Walk visits every block between the prologue and the epilogue in address
// order, validating each one before calling fn. A non-nil error from fn stops
// the walk and is returned unchanged.
func Walk(data []byte, fn func(Block) error) error {
	if err := Prologue(data); err != nil {
		return err
	}

	p := format.FirstBlockOffset
	for {
		hdrOff := format.HeaderOffset(p)
		hdr, err := format.ReadWordChecked(data, hdrOff)
		if err != nil {
			return &ValidationError{
				Type:    "Structure",
				Message: "blocks run past the end of the heap without an epilogue",
				Offset:  hdrOff,
			}
		}
		size, allocated := format.Unpack(hdr)

		if size == 0 {
			return epilogue(data, hdrOff, allocated)
		}

		if !format.IsAligned(size) || size < format.MinBlockSize {
			return &ValidationError{
				Type:    "Structure",
				Message: fmt.Sprintf("invalid block size: %d (must be >= %d and %d-byte aligned)", size, format.MinBlockSize, format.Alignment),
				Offset:  hdrOff,
			}
		}

		ftrOff := format.FooterOffset(p, size)
		ftr, err := format.ReadWordChecked(data, ftrOff)
		if err != nil || ftrOff+format.WordSize > len(data)-format.WordSize {
			return &ValidationError{
				Type:    "Structure",
				Message: fmt.Sprintf("block of size %d extends past the epilogue", size),
				Offset:  hdrOff,
				Details: map[string]interface{}{
					"heap_size": len(data),
				},
			}
		}
		if ftr != hdr {
			return &ValidationError{
				Type:    "Structure",
				Message: fmt.Sprintf("header/footer mismatch: header=0x%X footer=0x%X", hdr, ftr),
				Offset:  hdrOff,
				Details: map[string]interface{}{
					"header": hdr,
					"footer": ftr,
				},
			}
		}

		if fn != nil {
			if err := fn(Block{Offset: p, Size: size, Allocated: allocated}); err != nil {
				return err
			}
		}
		p = format.NextOffset(p, size)
	}
}

func epilogue(data []byte, off int, allocated bool) error {
	if !allocated {
		return &ValidationError{
			Type:    "Epilogue",
			Message: "zero-size tag is not marked allocated",
			Offset:  off,
		}
	}
	if off != len(data)-format.WordSize {
		return &ValidationError{
			Type:    "Epilogue",
			Message: fmt.Sprintf("epilogue is not the last word: heap ends at 0x%X", len(data)),
			Offset:  off,
		}
	}
	return nil
}

// Blocks returns every block in address order.
func Blocks(data []byte) ([]Block, error) {
	var out []Block
	err := Walk(data, func(b Block) error {
		out = append(out, b)
		return nil
	})
	return out, err
}

// Coalesced validates that no two adjacent blocks are both free.
func Coalesced(data []byte) error {
	var prev Block
	return Walk(data, func(b Block) error {
		if prev.Size != 0 && !prev.Allocated && !b.Allocated {
			return &ValidationError{
				Type:    "Coalesced",
				Message: fmt.Sprintf("adjacent free blocks: 0x%X (%d bytes) and 0x%X (%d bytes)", prev.Offset, prev.Size, b.Offset, b.Size),
				Offset:  b.Offset,
				Details: map[string]interface{}{
					"left":  prev.Offset,
					"right": b.Offset,
				},
			}
		}
		prev = b
		return nil
	})
}
