package alloc

import "fmt"

// Ptr is the payload offset of a block within its arena. Offsets stay valid
// for the life of the heap because the arena never moves.
type Ptr uint64

// Nil is the null pointer. Alloc(0) returns it and Free(Nil) is a no-op.
const Nil Ptr = 0

// ReallocPolicy selects how Realloc resizes a block.
type ReallocPolicy uint8

const (
	// ReallocCopy always allocates a new block, copies the payload and frees
	// the old block.
	ReallocCopy ReallocPolicy = iota

	// ReallocInPlace keeps the block when it already fits, grows it into a
	// free right neighbor or into fresh arena space at the epilogue, and only
	// copies when none of those apply. Copies over-allocate by one eighth.
	ReallocInPlace
)

func (p ReallocPolicy) String() string {
	switch p {
	case ReallocCopy:
		return "copy"
	case ReallocInPlace:
		return "inplace"
	default:
		return fmt.Sprintf("ReallocPolicy(%d)", uint8(p))
	}
}

// ParseReallocPolicy parses the String form of a policy.
func ParseReallocPolicy(s string) (ReallocPolicy, error) {
	switch s {
	case "copy", "":
		return ReallocCopy, nil
	case "inplace", "in-place":
		return ReallocInPlace, nil
	default:
		return ReallocCopy, fmt.Errorf("alloc: unknown realloc policy %q", s)
	}
}

// Allocator is the malloc/free/realloc surface shared by Heap and Worker.
//
// Implementations:
//   - Heap: single-threaded allocator with full coalescing
//   - Worker: per-goroutine context over a shared Pool arena
//   - WithLock: wraps any Allocator behind a mutex
type Allocator interface {
	// Alloc returns a block with at least size payload bytes. The returned
	// slice has length size. Alloc(0) returns Nil and a nil slice.
	Alloc(size int) (Ptr, []byte, error)

	// Free releases a block. Free(Nil) is a no-op.
	Free(p Ptr) error

	// Realloc resizes a block, preserving min(size, old payload) bytes.
	// Realloc(Nil, n) allocates; Realloc(p, 0) frees and returns Nil.
	Realloc(p Ptr, size int) (Ptr, []byte, error)

	// Payload returns the full usable payload of an allocated block.
	Payload(p Ptr) ([]byte, error)
}

// Compile-time interface checks.
var (
	_ Allocator = (*Heap)(nil)
	_ Allocator = (*Worker)(nil)
)
